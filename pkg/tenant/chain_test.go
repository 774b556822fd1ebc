package tenant_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

func TestChainResolver_NonStrict(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme")
	beta := newTenant("beta")

	t.Run("first match wins", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(map[string]tenant.Resolver{
			"a": fixedResolver(nil, nil),
			"b": fixedResolver(acme, nil),
			"c": fixedResolver(beta, nil),
		}, tenant.ChainConfig{Order: []string{"a", "b", "c"}})

		got, err := chain.Resolve(newRequest("/", ""))
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})

	t.Run("order decides", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(map[string]tenant.Resolver{
			"a": fixedResolver(acme, nil),
			"b": fixedResolver(beta, nil),
		}, tenant.ChainConfig{Order: []string{"b", "a"}})

		got, err := chain.Resolve(newRequest("/", ""))
		require.NoError(t, err)
		assert.Equal(t, beta, got)
	})

	t.Run("failures are swallowed", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(map[string]tenant.Resolver{
			"a": fixedResolver(nil, errRegistryDown),
			"b": fixedResolver(acme, nil),
		}, tenant.ChainConfig{Order: []string{"a", "b"}})

		got, err := chain.Resolve(newRequest("/", ""))
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})

	t.Run("no match is absent", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(map[string]tenant.Resolver{
			"a": fixedResolver(nil, nil),
		}, tenant.ChainConfig{Order: []string{"a"}})

		got, err := chain.Resolve(newRequest("/", ""))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown names are skipped", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(map[string]tenant.Resolver{
			"a": fixedResolver(acme, nil),
			"z": fixedResolver(beta, nil),
		}, tenant.ChainConfig{Order: []string{"missing", " a "}})

		assert.Equal(t, []string{"a"}, chain.Names())
		assert.False(t, chain.Strict())
	})
}

func TestChainResolver_Strict(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme")
	acmeCopy := newTenant("acme")
	beta := newTenant("beta")

	t.Run("agreeing resolvers", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(map[string]tenant.Resolver{
			"a": fixedResolver(acme, nil),
			"b": fixedResolver(nil, nil),
			"c": fixedResolver(acmeCopy, nil),
		}, tenant.ChainConfig{Order: []string{"a", "b", "c"}, Strict: true})

		got, err := chain.Resolve(newRequest("/", ""))
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})

	t.Run("disagreeing resolvers", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(map[string]tenant.Resolver{
			"a": fixedResolver(acme, nil),
			"b": fixedResolver(beta, nil),
		}, tenant.ChainConfig{Order: []string{"a", "b"}, Strict: true})

		got, err := chain.Resolve(newRequest("/", ""))
		assert.Nil(t, got)
		require.ErrorIs(t, err, tenant.ErrAmbiguousTenant)

		var ambiguous *tenant.AmbiguousResolutionError
		require.True(t, errors.As(err, &ambiguous))
		assert.Equal(t, map[string]any{
			"results": map[string]string{"a": "acme", "b": "beta"},
		}, ambiguous.Diagnostics())
	})

	t.Run("nothing resolved", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(map[string]tenant.Resolver{
			"a": fixedResolver(nil, nil),
			"b": fixedResolver(nil, nil),
		}, tenant.ChainConfig{Order: []string{"a", "b"}, Strict: true})

		got, err := chain.Resolve(newRequest("/", ""))
		assert.Nil(t, got)
		require.ErrorIs(t, err, tenant.ErrNoTenantResolved)

		var resErr *tenant.ResolutionError
		require.True(t, errors.As(err, &resErr))
		assert.Equal(t, []string{"a", "b"}, resErr.Tried)
		assert.Empty(t, resErr.Resolver)
	})

	t.Run("failure aborts", func(t *testing.T) {
		t.Parallel()

		called := false
		chain := tenant.NewChainResolver(map[string]tenant.Resolver{
			"a": fixedResolver(nil, errRegistryDown),
			"b": tenant.ResolverFunc(func(*http.Request) (*tenant.Tenant, error) {
				called = true
				return acme, nil
			}),
		}, tenant.ChainConfig{Order: []string{"a", "b"}, Strict: true})

		_, err := chain.Resolve(newRequest("/", ""))
		require.ErrorIs(t, err, tenant.ErrNoTenantResolved)
		require.ErrorIs(t, err, errRegistryDown)
		assert.False(t, called)

		var resErr *tenant.ResolutionError
		require.True(t, errors.As(err, &resErr))
		assert.Equal(t, "a", resErr.Resolver)
		assert.Equal(t, "a", resErr.Diagnostics()["failed_resolver"])
	})
}

func TestChainResolver_HeaderAllowList(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme")
	beta := newTenant("beta")
	reg := tenant.NewMemoryRegistry(acme, beta)

	resolvers := map[string]tenant.Resolver{
		"header": tenant.NewHeaderResolver(reg, "X-Tenant-Slug"),
		"path":   tenant.NewPathResolver(reg),
	}

	req := newRequest("/beta/home", "")
	req.Header.Set("X-Tenant-Slug", "acme")

	t.Run("header not allowed is ignored", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(resolvers, tenant.ChainConfig{
			Order: []string{"header", "path"},
		})

		got, err := chain.Resolve(req.Clone(req.Context()))
		require.NoError(t, err)
		assert.Equal(t, beta, got)
	})

	t.Run("allowed header is used", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(resolvers, tenant.ChainConfig{
			Order:           []string{"header", "path"},
			HeaderAllowList: []string{"x-tenant-slug"},
		})

		got, err := chain.Resolve(req.Clone(req.Context()))
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})

	t.Run("strict chain ignores disallowed header", func(t *testing.T) {
		t.Parallel()

		chain := tenant.NewChainResolver(resolvers, tenant.ChainConfig{
			Order:  []string{"header", "path"},
			Strict: true,
		})

		got, err := chain.Resolve(req.Clone(req.Context()))
		require.NoError(t, err)
		assert.Equal(t, beta, got)
	})
}
