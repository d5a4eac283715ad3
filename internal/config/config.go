package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	DefaultTenant  string   `mapstructure:"DEFAULT_TENANT"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	MigrationsDir  string   `mapstructure:"MIGRATIONS_DIR"`

	UnderpaymentThresholdPercent float64       `mapstructure:"UNDERPAYMENT_THRESHOLD_PERCENT"`
	UnderpaymentTopN             int           `mapstructure:"UNDERPAYMENT_TOP_N"`
	AppealDeadlineDays           int           `mapstructure:"APPEAL_DEADLINE_DAYS"`
	CatalogCacheTTL              time.Duration `mapstructure:"CATALOG_CACHE_TTL"`
	// AppealTemplatesFile optionally replaces the built-in appeal letters.
	AppealTemplatesFile string `mapstructure:"APPEAL_TEMPLATES_FILE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"DEFAULT_TENANT", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "MIGRATIONS_DIR", "UNDERPAYMENT_THRESHOLD_PERCENT", "UNDERPAYMENT_TOP_N",
	"APPEAL_DEADLINE_DAYS", "CATALOG_CACHE_TTL", "APPEAL_TEMPLATES_FILE",
}

// Load reads .env (optional) and the environment. Environment wins.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("UNDERPAYMENT_THRESHOLD_PERCENT", 10)
	v.SetDefault("UNDERPAYMENT_TOP_N", 50)
	v.SetDefault("APPEAL_DEADLINE_DAYS", 60)
	v.SetDefault("CATALOG_CACHE_TTL", "10m")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects settings that would run unauthenticated outside
// development or break the billing engines.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is for development only; use AUTH_ISSUER/AUTH_JWKS_URL in production")
	}
	if c.UnderpaymentThresholdPercent < 0 || c.UnderpaymentThresholdPercent > 100 {
		return fmt.Errorf("UNDERPAYMENT_THRESHOLD_PERCENT must be between 0 and 100, got %v", c.UnderpaymentThresholdPercent)
	}
	if c.UnderpaymentTopN <= 0 {
		return fmt.Errorf("UNDERPAYMENT_TOP_N must be positive, got %d", c.UnderpaymentTopN)
	}
	if c.AppealDeadlineDays <= 0 {
		return fmt.Errorf("APPEAL_DEADLINE_DAYS must be positive, got %d", c.AppealDeadlineDays)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
