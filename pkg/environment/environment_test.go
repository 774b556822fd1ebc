package environment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/tenancy/pkg/environment"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := map[string]environment.Environment{
		"prod":        environment.Production,
		" Production": environment.Production,
		"dev":         environment.Development,
		"local":       environment.Development,
		"STAGE":       environment.Staging,
		"testing":     environment.Test,
		"qa":          environment.Environment("qa"),
		"":            environment.Environment(""),
	}
	for in, want := range tests {
		got := environment.Parse(in)
		assert.Equal(t, want, got, "Parse(%q)", in)
		assert.Equal(t, want != "qa" && want != "", got.Known(), "Known(%q)", in)
	}
}

func TestContext(t *testing.T) {
	t.Parallel()

	bg := context.Background()
	assert.Empty(t, environment.FromContext(bg))
	assert.False(t, environment.IsProduction(bg))

	ctx := environment.WithContext(bg, environment.Staging)
	assert.Equal(t, environment.Staging, environment.FromContext(ctx))
	assert.True(t, environment.IsStaging(ctx))
	assert.False(t, environment.IsDevelopment(ctx))

	// Raw aliases stored without Parse still compare equal.
	assert.True(t, environment.IsProduction(environment.WithContext(bg, "prod")))
	assert.True(t, environment.IsTest(environment.WithContext(bg, "testing")))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var seen environment.Environment
	h := environment.Middleware(environment.Production)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = environment.FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, environment.Production, seen)

	// The innermost middleware wins.
	nested := environment.Middleware(environment.Development)(h)
	nested.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, environment.Production, seen)
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := environment.LoggerExtractor()

	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(environment.WithContext(context.Background(), environment.Test))
	assert.True(t, ok)
	assert.Equal(t, "env", attr.Key)
	assert.Equal(t, "test", attr.Value.String())
}
