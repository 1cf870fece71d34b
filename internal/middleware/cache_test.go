package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/email-confirmation/internal/config"
)

func newCacheTestServer(t *testing.T) (*echo.Echo, *int) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := config.CacheConfig{
		Enabled: true,
		Methods: map[string]bool{"GET": true},
		TTL:     time.Minute,
		Prefix:  "cache",
	}

	hits := 0
	e := echo.New()
	// Simulate JWTAuth having identified the caller.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ContextUserID, uint64(1))
			return next(c)
		}
	})
	e.GET("/v1/emails", func(c echo.Context) error {
		hits++
		return c.JSON(http.StatusOK, echo.Map{"confirmed": []string{"a@x.com"}})
	}, NewRedisCache(cfg, rdb))
	return e, &hits
}

func TestRedisCacheServesSecondRequestFromCache(t *testing.T) {
	e, hits := newCacheTestServer(t)

	first := httptest.NewRecorder()
	e.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/v1/emails", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := httptest.NewRecorder()
	e.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/v1/emails", nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))

	assert.Equal(t, 1, *hits)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestRedisCacheDisabledPassesThrough(t *testing.T) {
	e := echo.New()
	hits := 0
	e.GET("/x", func(c echo.Context) error {
		hits++
		return c.String(http.StatusOK, "ok")
	}, NewRedisCache(config.CacheConfig{Enabled: false}, nil))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 2, hits)
}
