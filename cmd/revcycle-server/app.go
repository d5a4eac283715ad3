package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/config"
	"github.com/ehr/revcycle/internal/domain/appeal"
	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/domain/era"
	"github.com/ehr/revcycle/internal/domain/modifier"
	"github.com/ehr/revcycle/internal/domain/scrub"
	"github.com/ehr/revcycle/internal/domain/underpayment"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/audit"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
	"github.com/ehr/revcycle/internal/platform/events"
	"github.com/ehr/revcycle/internal/platform/idgen"
	"github.com/ehr/revcycle/internal/platform/middleware"
	"github.com/ehr/revcycle/pkg/money"
)

const (
	version = "0.1.0"

	bodyLimit       = "1M"
	importBodyLimit = "25M"
)

// app holds the wired services. The CLI and the HTTP server share it.
type app struct {
	catalog      catalog.Store
	claims       *claim.Service
	modifiers    *modifier.Service
	reconciler   *era.Reconciler
	underpayment *underpayment.Service
	appeals      *appeal.Tracker

	audit audit.Sink
	redis *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	a := &app{}

	var store catalog.Store = catalog.NewStorePG(pool)
	emitter := events.Fanout{events.NewLogEmitter(logger)}
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		store = catalog.NewCachedStore(store, client, cfg.CatalogCacheTTL, logger)
		emitter = append(emitter, events.NewRedisEmitter(client, "revcycle", logger))
	}

	a.catalog = store
	sink := audit.Multi{audit.NewLogSink(logger), audit.NewPGSink(pool)}
	a.audit = sink
	ids := idgen.NewUUIDGenerator()
	tx := db.NewTxRunner(pool)
	advisor := modifier.NewAdvisor()

	claimRepo := claim.NewRepoPG(pool)
	appealRepo := appeal.NewRepoPG(pool)
	a.claims = claim.NewService(claim.Deps{
		Claims:   claimRepo,
		Ledger:   claim.NewLedgerRepoPG(pool),
		History:  claim.NewHistoryRepoPG(pool),
		Tx:       tx,
		IDs:      ids,
		Catalog:  store,
		Scrubber: scrub.NewEngine(advisor),
		Advisor:  advisor,
		Appeals:  appeal.Closer{Appeals: appealRepo},
		Events:   emitter,
		Audit:    sink,
		Logger:   logger.With().Str("component", "claim").Logger(),
	})
	a.modifiers = modifier.NewService(advisor, store, logger.With().Str("component", "modifier").Logger())

	a.reconciler = era.NewReconciler(era.Deps{
		Claims:     a.claims,
		Candidates: claimRepo,
		Batches:    era.NewBatchRepoPG(pool),
		IDs:        ids,
		Audit:      sink,
		Logger:     logger.With().Str("component", "era").Logger(),
	})

	a.underpayment = underpayment.NewService(underpayment.Deps{
		Analyzer: underpayment.NewAnalyzer(money.FromFloat(cfg.UnderpaymentThresholdPercent)),
		Claims:   a.claims,
		Source:   claimRepo,
		Flags:    underpayment.NewFlagRepoPG(pool),
		Catalog:  store,
		IDs:      ids,
		Audit:    sink,
		Logger:   logger.With().Str("component", "underpayment").Logger(),
		TopN:     cfg.UnderpaymentTopN,
	})

	templates := appeal.DefaultTemplates()
	if cfg.AppealTemplatesFile != "" {
		t, err := appeal.LoadTemplates(cfg.AppealTemplatesFile)
		if err != nil {
			return nil, err
		}
		templates = t
	}
	a.appeals = appeal.NewTracker(appeal.Deps{
		Claims:       a.claims,
		Appeals:      appealRepo,
		Tx:           tx,
		Templates:    templates,
		IDs:          ids,
		Audit:        sink,
		Logger:       logger.With().Str("component", "appeal").Logger(),
		DeadlineDays: cfg.AppealDeadlineDays,
	})
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// newRouter builds the echo instance. Health endpoints sit outside the
// authenticated, tenant-scoped /api/v1 group.
func newRouter(cfg *config.Config, pool *pgxpool.Pool, a *app, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(bodyLimit, importBodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "Content-Encoding", "X-Request-ID", "X-Tenant-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	deps := map[string]db.Pinger{}
	if a.redis != nil {
		deps["redis"] = events.Pinger{Client: a.redis}
	}
	e.GET("/health/db", db.HealthHandler(pool, deps))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(authMiddleware(cfg))
	apiV1.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	apiV1.Use(middleware.AuditReads(a.audit, logger))

	catalog.NewHandler(a.catalog, logger).RegisterRoutes(apiV1)
	claim.NewHandler(a.claims).RegisterRoutes(apiV1)
	modifier.NewHandler(a.modifiers).RegisterRoutes(apiV1)
	era.NewHandler(a.reconciler).RegisterRoutes(apiV1)
	underpayment.NewHandler(a.underpayment).RegisterRoutes(apiV1)
	appeal.NewHandler(a.appeals).RegisterRoutes(apiV1)

	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthIssuer == "" {
		return auth.DevAuthMiddleware(cfg.DefaultTenant)
	}
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "revcycle-server",
	})
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(stdout).With().Timestamp().Logger()
}
