package tenant_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

var errRegistryDown = errors.New("registry down")

func newTenant(slug string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:     uuid.New(),
		Slug:   slug,
		Name:   slug + " inc",
		Active: true,
	}
}

func newRequest(target, host string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if host != "" {
		req.Host = host
	}
	return req
}

// failingRegistry fails every lookup.
type failingRegistry struct{}

func (failingRegistry) GetBySlug(context.Context, string) (*tenant.Tenant, error) {
	return nil, errRegistryDown
}

func (failingRegistry) FindBySlug(context.Context, string) (*tenant.Tenant, error) {
	return nil, errRegistryDown
}

func (failingRegistry) FindByID(context.Context, uuid.UUID) (*tenant.Tenant, error) {
	return nil, errRegistryDown
}

func (failingRegistry) GetAll(context.Context) ([]*tenant.Tenant, error) {
	return nil, errRegistryDown
}

// countingRegistry counts lookups that reach the wrapped registry.
type countingRegistry struct {
	tenant.Registry
	calls int
}

func (r *countingRegistry) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	r.calls++
	return r.Registry.FindBySlug(ctx, slug)
}

func (r *countingRegistry) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	r.calls++
	return r.Registry.FindByID(ctx, id)
}

func fixedResolver(t *tenant.Tenant, err error) tenant.Resolver {
	return tenant.ResolverFunc(func(*http.Request) (*tenant.Tenant, error) {
		return t, err
	})
}
