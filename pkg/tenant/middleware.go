package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware creates HTTP middleware that resolves the tenant once per request
// and exposes it through a request-scoped Context holder.
//
// Resolution failures (*ResolutionError, *AmbiguousResolutionError) are logged with
// full diagnostics and handed to the error handler. Any other resolver error is
// logged and the request continues without a tenant. If a tenant is already present
// in the request context (nested mount), resolution is skipped.
func Middleware(resolver Resolver, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		requireActive: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.errorHandler == nil {
		cfg.errorHandler = newDefaultErrorHandler(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if _, ok := FromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			t, err := resolver.Resolve(r)
			if err != nil && !isResolutionFailure(err) {
				cfg.logger.WarnContext(r.Context(), "tenant resolver failed, continuing without tenant",
					slog.String("method", r.Method),
					slog.String("uri", r.RequestURI),
					slog.String("error", err.Error()))
				t, err = nil, nil
			}
			if err == nil && t == nil && cfg.requireTenant {
				err = &ResolutionError{Tried: triedNames(resolver)}
			}
			if err != nil {
				cfg.logResolutionFailure(r, err)
				cfg.errorHandler(w, r, err)
				return
			}

			if t != nil && cfg.requireActive && !t.Active {
				cfg.errorHandler(w, r, ErrInactiveTenant)
				return
			}

			ctx, holder := NewContext(r.Context())
			if t != nil {
				holder.Set(t)
			}
			defer holder.Clear()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant creates middleware that ensures a tenant is present in the context.
// This is useful for protecting routes that require tenant context.
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = newDefaultErrorHandler(&config{})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				errorHandler(w, r, ErrNoTenantInContext)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isResolutionFailure(err error) bool {
	return errors.Is(err, ErrNoTenantResolved) || errors.Is(err, ErrAmbiguousTenant)
}

// triedNames lists the strategies behind r when r can name them.
func triedNames(r Resolver) []string {
	if n, ok := r.(interface{ Names() []string }); ok {
		return n.Names()
	}
	return nil
}

func (c *config) logResolutionFailure(r *http.Request, err error) {
	attrs := []any{
		slog.String("method", r.Method),
		slog.String("uri", r.RequestURI),
		slog.String("error", err.Error()),
	}
	var d diagnoser
	if errors.As(err, &d) {
		attrs = append(attrs, slog.Any("diagnostics", d.Diagnostics()))
	}
	c.logger.ErrorContext(r.Context(), "tenant resolution failed", attrs...)
}
