package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const publishTimeout = 2 * time.Second

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisEmitter publishes events as JSON on one pub/sub channel per tenant.
type RedisEmitter struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

func NewRedisEmitter(client *redis.Client, prefix string, logger zerolog.Logger) *RedisEmitter {
	if prefix == "" {
		prefix = "revcycle:claims"
	}
	return &RedisEmitter{client: client, prefix: prefix, logger: logger}
}

// Channel is the pub/sub channel for a tenant.
func (r *RedisEmitter) Channel(tenantID string) string {
	return r.prefix + ":" + tenantID
}

func (r *RedisEmitter) Emit(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		r.logger.Error().Err(err).Str("event", string(e.Type)).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.Channel(e.TenantID), data).Err(); err != nil {
		r.logger.Warn().Err(err).
			Str("event", string(e.Type)).
			Str("tenant_id", e.TenantID).
			Str("claim_id", e.ClaimID.String()).
			Msg("failed to publish event")
	}
}

// Subscribe streams a tenant's events until ctx is done.
func (r *RedisEmitter) Subscribe(ctx context.Context, tenantID string) <-chan Event {
	out := make(chan Event, 100)
	sub := r.client.Subscribe(ctx, r.Channel(tenantID))
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					r.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("skipping malformed event")
					continue
				}
				select {
				case out <- e:
				default:
					r.logger.Warn().Str("event_id", e.ID.String()).Msg("subscriber full, dropping event")
				}
			}
		}
	}()
	return out
}

// Pinger adapts a redis client to db.Pinger for health checks.
type Pinger struct {
	Client *redis.Client
}

func (p Pinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}
