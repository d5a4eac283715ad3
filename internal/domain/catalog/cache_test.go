package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/revcycle/internal/platform/db"
)

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

type failingInvalidator struct {
	*Static
}

func (failingInvalidator) Invalidate(context.Context) error {
	return errors.New("redis: connection refused")
}

func TestCachedStore_FallsThroughWhenRedisIsDown(t *testing.T) {
	rs := NewRuleSet(nil, nil, nil, nil, nil)
	store := NewCachedStore(NewStatic(rs), unreachable(t), time.Minute, zerolog.Nop())
	ctx := db.WithTenant(context.Background(), "acme")

	got, err := store.RuleSet(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)

	assert.Error(t, Invalidate(ctx, store), "invalidation reaches the cache")
}

func TestInvalidate_UncachedStoreIsNoop(t *testing.T) {
	assert.NoError(t, Invalidate(context.Background(), NewStatic(NewRuleSet(nil, nil, nil, nil, nil))))
}

func TestHandler_Refresh(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	h := NewHandler(NewStatic(NewRuleSet(nil, nil, nil, nil, nil)), zerolog.Nop())
	require.NoError(t, h.Refresh(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	h = NewHandler(failingInvalidator{Static: NewStatic(nil)}, zerolog.Nop())
	err := h.Refresh(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusInternalServerError, he.Code)
}
