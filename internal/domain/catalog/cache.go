package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/platform/db"
)

// CachedStore keeps each tenant's RuleSet in redis for ttl. Redis failures
// fall through to the wrapped store.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedStore {
	return &CachedStore{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(tenantID string) string {
	return "revcycle:catalog:" + tenantID
}

func (s *CachedStore) RuleSet(ctx context.Context) (*RuleSet, error) {
	key := cacheKey(db.TenantFromContext(ctx))

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rs RuleSet
		if jerr := json.Unmarshal(data, &rs); jerr == nil {
			return &rs, nil
		}
		s.logger.Warn().Str("key", key).Msg("discarding unreadable catalog cache entry")
	case !errors.Is(err, redis.Nil):
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
	}

	rs, err := s.next.RuleSet(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rs); err == nil {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
		}
	}
	return rs, nil
}

// Invalidate drops the cached RuleSet for the tenant on ctx.
func (s *CachedStore) Invalidate(ctx context.Context) error {
	return s.client.Del(ctx, cacheKey(db.TenantFromContext(ctx))).Err()
}
