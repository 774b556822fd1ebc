package ratelimiter

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/tenancy/pkg/clientip"
	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// KeyFunc returns the bucket key for a request and the tenant slug that sizes
// the bucket. An empty key lets the request through unlimited.
type KeyFunc func(r *http.Request) (key, slug string)

// ByTenant gives every tenant one shared bucket. Requests without a tenant are
// limited per client IP with the default limit.
func ByTenant() KeyFunc {
	return func(r *http.Request) (string, string) {
		if t, ok := tenant.FromContext(r.Context()); ok {
			return "tenant:" + t.Slug, t.Slug
		}
		return ByIP()(r)
	}
}

// ByIP limits per client address regardless of tenant.
func ByIP() KeyFunc {
	return func(r *http.Request) (string, string) {
		ip := clientip.FromContext(r.Context())
		if ip == "" {
			ip = clientip.FromRequest(r)
		}
		if ip == "" {
			return "", ""
		}
		return "ip:" + ip, ""
	}
}

type middlewareConfig struct {
	logger     *slog.Logger
	failClosed bool
}

type MiddlewareOption func(*middlewareConfig)

func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFailClosed answers 503 when the store fails. By default such requests
// are let through and the failure is logged.
func WithFailClosed(failClosed bool) MiddlewareOption {
	return func(c *middlewareConfig) { c.failClosed = failClosed }
}

// Middleware takes one token per request and answers 429 with Retry-After
// once the bucket is empty. X-RateLimit-* headers are set on every limited
// response.
func Middleware(l *Limiter, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	if keyFunc == nil {
		keyFunc = ByTenant()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, slug := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), key, slug)
			if err != nil {
				cfg.logger.WarnContext(r.Context(), "rate limit check failed",
					logger.Component("ratelimiter"),
					slog.String("key", key),
					logger.Error(err))
				if cfg.failClosed {
					writeError(w, http.StatusServiceUnavailable, "Service Unavailable")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter().Seconds()))))
				writeError(w, http.StatusTooManyRequests, "Too Many Requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg, "code": status})
}
