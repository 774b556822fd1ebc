package ratelimiter_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/ratelimiter"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

type brokenStore struct{}

func (brokenStore) ConsumeTokens(context.Context, string, int, ratelimiter.Limit) (int, time.Time, error) {
	return 0, time.Time{}, ratelimiter.ErrStoreUnavailable
}

func (brokenStore) Reset(context.Context, string) error {
	return errors.New("unavailable")
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func request(slug, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	if slug != "" {
		t := &tenant.Tenant{ID: uuid.New(), Slug: slug, Active: true}
		req = req.WithContext(tenant.WithTenant(req.Context(), t))
	}
	return req
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("limits per tenant and sets headers", func(t *testing.T) {
		t.Parallel()
		l := newLimiter(t, newClock(), defaultConfig())
		h := ratelimiter.Middleware(l, ratelimiter.ByTenant())(okHandler)

		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("acme", "192.0.2.1:1000"))
			require.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		}

		// Another user of the same tenant shares the bucket.
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("acme", "192.0.2.99:1000"))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, request("globex", "192.0.2.1:1000"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("requests without tenant are limited per IP", func(t *testing.T) {
		t.Parallel()
		l := newLimiter(t, newClock(), defaultConfig())
		h := ratelimiter.Middleware(l, nil)(okHandler)

		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("", "192.0.2.1:1000"))
			require.Equal(t, http.StatusNoContent, rec.Code)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("", "192.0.2.1:2000"))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, request("", "192.0.2.2:1000"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("empty key is not limited", func(t *testing.T) {
		t.Parallel()
		l := newLimiter(t, newClock(), defaultConfig())
		h := ratelimiter.Middleware(l, ratelimiter.ByIP())(okHandler)

		for range 10 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("", "garbage"))
			require.Equal(t, http.StatusNoContent, rec.Code)
		}
	})

	t.Run("store failure fails open by default", func(t *testing.T) {
		t.Parallel()
		l, err := ratelimiter.New(brokenStore{}, defaultConfig())
		require.NoError(t, err)
		quiet := ratelimiter.WithLogger(slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		ratelimiter.Middleware(l, nil, quiet)(okHandler).ServeHTTP(rec, request("acme", "192.0.2.1:1"))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = httptest.NewRecorder()
		ratelimiter.Middleware(l, nil, quiet, ratelimiter.WithFailClosed(true))(okHandler).ServeHTTP(rec, request("acme", "192.0.2.1:1"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
