package environment

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey struct{}

func WithContext(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, contextKey{}, env)
}

// FromContext returns the environment stored in ctx, or "" when there is none.
func FromContext(ctx context.Context) Environment {
	if ctx == nil {
		return ""
	}
	env, _ := ctx.Value(contextKey{}).(Environment)
	return env
}

// Values stored without Parse are normalized before comparison.
func is(ctx context.Context, want Environment) bool {
	return Parse(string(FromContext(ctx))) == want
}

func IsProduction(ctx context.Context) bool  { return is(ctx, Production) }
func IsDevelopment(ctx context.Context) bool { return is(ctx, Development) }
func IsStaging(ctx context.Context) bool     { return is(ctx, Staging) }
func IsTest(ctx context.Context) bool        { return is(ctx, Test) }

// Middleware stores env in every request context.
func Middleware(env Environment) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), env)))
		})
	}
}

// LoggerExtractor logs the context environment under "env".
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if env := FromContext(ctx); env != "" {
			return slog.String("env", string(env)), true
		}
		return slog.Attr{}, false
	}
}
