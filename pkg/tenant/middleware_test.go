package tenant_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/environment"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme")
	reg := tenant.NewMemoryRegistry(acme)

	t.Run("sets tenant for the request", func(t *testing.T) {
		t.Parallel()

		var holder *tenant.Context
		handler := tenant.Middleware(tenant.NewPathResolver(reg))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := tenant.FromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, acme, got)
			holder, _ = tenant.HolderFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/acme/home", ""))

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, holder)
		assert.False(t, holder.Has(), "holder cleared after the request")
	})

	t.Run("continues without tenant", func(t *testing.T) {
		t.Parallel()

		handler := tenant.Middleware(tenant.NewPathResolver(reg))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := tenant.FromContext(r.Context())
			assert.False(t, ok)
			_, hasHolder := tenant.HolderFromContext(r.Context())
			assert.True(t, hasHolder)
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/nobody", ""))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("resolver failure is not fatal", func(t *testing.T) {
		t.Parallel()

		handler := tenant.Middleware(tenant.NewPathResolver(failingRegistry{}))(okHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/acme", ""))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("require tenant", func(t *testing.T) {
		t.Parallel()

		handler := tenant.Middleware(tenant.NewPathResolver(reg), tenant.WithRequireTenant(true))(okHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/nobody", ""))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("inactive tenant", func(t *testing.T) {
		t.Parallel()

		dormant := newTenant("dormant")
		dormant.Active = false
		handler := tenant.Middleware(fixedResolver(dormant, nil))(okHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/", ""))
		assert.Equal(t, http.StatusForbidden, w.Code)

		handler = tenant.Middleware(fixedResolver(dormant, nil), tenant.WithRequireActive(false))(okHandler())
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/", ""))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("skip paths", func(t *testing.T) {
		t.Parallel()

		called := false
		resolver := tenant.ResolverFunc(func(*http.Request) (*tenant.Tenant, error) {
			called = true
			return acme, nil
		})
		handler := tenant.Middleware(resolver, tenant.WithSkipPaths([]string{"/health"}))(okHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/health/live", ""))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, called)
	})

	t.Run("nested mount keeps outer tenant", func(t *testing.T) {
		t.Parallel()

		beta := newTenant("beta")
		inner := tenant.Middleware(fixedResolver(beta, nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, acme, tenant.MustFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))
		handler := tenant.Middleware(fixedResolver(acme, nil))(inner)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/", ""))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("custom error handler", func(t *testing.T) {
		t.Parallel()

		var got error
		handler := tenant.Middleware(
			fixedResolver(nil, &tenant.ResolutionError{Tried: []string{"path"}}),
			tenant.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
				got = err
				w.WriteHeader(http.StatusTeapot)
			}),
		)(okHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/", ""))
		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.ErrorIs(t, got, tenant.ErrNoTenantResolved)
	})
}

func TestMiddleware_ErrorBody(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme")
	beta := newTenant("beta")
	ambiguous := &tenant.AmbiguousResolutionError{Matches: []tenant.Match{
		{Resolver: "header", Tenant: acme},
		{Resolver: "path", Tenant: beta},
	}}

	serve := func(t *testing.T, env environment.Environment, err error, opts ...tenant.Option) tenant.ErrorResponse {
		t.Helper()

		handler := environment.Middleware(env)(tenant.Middleware(fixedResolver(nil, err), opts...)(okHandler()))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("/", ""))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var body tenant.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body
	}

	t.Run("development includes diagnostics", func(t *testing.T) {
		t.Parallel()

		body := serve(t, environment.Development, ambiguous)
		assert.Equal(t, http.StatusBadRequest, body.Code)
		assert.Equal(t, tenant.ErrorTypeAmbiguousResolution, body.Type)
		assert.Equal(t, ambiguous.Error(), body.ExceptionMessage)
		assert.Equal(t, map[string]any{"header": "acme", "path": "beta"}, body.Diagnostics["results"])
	})

	t.Run("test environment includes resolution type", func(t *testing.T) {
		t.Parallel()

		body := serve(t, environment.Test, &tenant.ResolutionError{Tried: []string{"path", "header"}})
		assert.Equal(t, tenant.ErrorTypeResolutionFailed, body.Type)
		assert.Equal(t, []any{"path", "header"}, body.Diagnostics["resolvers_tried"])
	})

	t.Run("production hides diagnostics", func(t *testing.T) {
		t.Parallel()

		body := serve(t, environment.Production, ambiguous)
		assert.NotEmpty(t, body.Error)
		assert.Empty(t, body.Type)
		assert.Empty(t, body.ExceptionMessage)
		assert.Nil(t, body.Diagnostics)
	})

	t.Run("explicit override", func(t *testing.T) {
		t.Parallel()

		body := serve(t, environment.Production, ambiguous, tenant.WithDiagnostics(true))
		assert.Equal(t, tenant.ErrorTypeAmbiguousResolution, body.Type)
	})
}

func TestMiddleware_FailureLogging(t *testing.T) {
	t.Parallel()

	ambiguous := &tenant.AmbiguousResolutionError{Matches: []tenant.Match{
		{Resolver: "header", Tenant: newTenant("acme")},
		{Resolver: "path", Tenant: newTenant("beta")},
	}}

	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := environment.Middleware(environment.Production)(
		tenant.Middleware(fixedResolver(nil, ambiguous), tenant.WithLogger(log))(okHandler()),
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("/reports?month=5", ""))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "diagnostics")
	assert.NotContains(t, body, "exception_message")
	assert.NotContains(t, body, "type")

	var record map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, http.MethodGet, record["method"])
	assert.Equal(t, "/reports?month=5", record["uri"])
	assert.Equal(t, map[string]any{
		"results": map[string]any{"header": "acme", "path": "beta"},
	}, record["diagnostics"])
}

func TestMiddleware_RequiredTenantNamesStrategy(t *testing.T) {
	t.Parallel()

	reg := tenant.NewMemoryRegistry(newTenant("acme"))
	resolver, err := tenant.NewResolver(tenant.Config{Resolver: tenant.StrategyPath}, reg, nil)
	require.NoError(t, err)

	handler := environment.Middleware(environment.Development)(
		tenant.Middleware(resolver, tenant.WithRequireTenant(true))(okHandler()),
	)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("/nobody", ""))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body tenant.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []any{tenant.StrategyPath}, body.Diagnostics["resolvers_tried"])
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	handler := tenant.RequireTenant(nil)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("/", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := newRequest("/", "")
	req = req.WithContext(tenant.WithTenant(req.Context(), newTenant("acme")))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
