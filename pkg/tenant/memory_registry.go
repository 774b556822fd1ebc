package tenant

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryRegistry is an in-memory Registry for tests and local development.
type MemoryRegistry struct {
	mu     sync.RWMutex
	bySlug map[string]*Tenant
	byID   map[uuid.UUID]*Tenant
}

// NewMemoryRegistry creates a registry seeded with the given tenants.
func NewMemoryRegistry(tenants ...*Tenant) *MemoryRegistry {
	r := &MemoryRegistry{
		bySlug: make(map[string]*Tenant, len(tenants)),
		byID:   make(map[uuid.UUID]*Tenant, len(tenants)),
	}
	for _, t := range tenants {
		r.Add(t)
	}
	return r
}

// Add stores or replaces a tenant. Nil tenants and empty slugs are ignored.
func (r *MemoryRegistry) Add(t *Tenant) {
	if t == nil || t.Slug == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[t.ID]; ok && prev.Slug != t.Slug {
		delete(r.bySlug, prev.Slug)
	}
	r.bySlug[t.Slug] = t
	r.byID[t.ID] = t
}

// Remove deletes a tenant by slug.
func (r *MemoryRegistry) Remove(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.bySlug[slug]; ok {
		delete(r.byID, t.ID)
		delete(r.bySlug, slug)
	}
}

func (r *MemoryRegistry) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	t, _ := r.FindBySlug(ctx, slug)
	if t == nil {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

func (r *MemoryRegistry) FindBySlug(_ context.Context, slug string) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bySlug[slug], nil
}

func (r *MemoryRegistry) FindByID(_ context.Context, id uuid.UUID) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id], nil
}

// GetAll returns tenants ordered by slug.
func (r *MemoryRegistry) GetAll(_ context.Context) ([]*Tenant, error) {
	r.mu.RLock()
	out := make([]*Tenant, 0, len(r.bySlug))
	for _, t := range r.bySlug {
		out = append(out, t)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Tenant) int { return strings.Compare(a.Slug, b.Slug) })
	return out, nil
}
