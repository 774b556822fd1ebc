package tenant

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Context holds the current tenant of one unit of work (an HTTP request,
// a task, a console run). It is either empty or set; Set overwrites, Clear empties.
//
// A Context must never be shared between concurrently running units of work.
// Create one per unit of work with NewContext and release it with Clear.
type Context struct {
	mu     sync.RWMutex
	tenant *Tenant
}

// Set makes t the current tenant. Last write wins.
func (c *Context) Set(t *Tenant) {
	c.mu.Lock()
	c.tenant = t
	c.mu.Unlock()
}

// Clear empties the holder. Safe to call repeatedly.
func (c *Context) Clear() {
	c.mu.Lock()
	c.tenant = nil
	c.mu.Unlock()
}

// Tenant returns the current tenant or nil.
func (c *Context) Tenant() *Tenant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tenant
}

// Has reports whether a tenant is set.
func (c *Context) Has() bool {
	return c.Tenant() != nil
}

// contextKey prevents collisions with other packages using context values
type contextKey struct{}

// NewContext attaches a fresh, empty holder to ctx.
func NewContext(ctx context.Context) (context.Context, *Context) {
	holder := &Context{}
	return context.WithValue(ctx, contextKey{}, holder), holder
}

// HolderFromContext returns the holder attached to ctx, if any.
func HolderFromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	holder, ok := ctx.Value(contextKey{}).(*Context)
	return holder, ok && holder != nil
}

// WithTenant attaches a fresh holder already set to t.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	ctx, holder := NewContext(ctx)
	holder.Set(t)
	return ctx
}

// FromContext retrieves the current tenant.
// Returns nil, false if no holder is attached or the holder is empty.
func FromContext(ctx context.Context) (*Tenant, bool) {
	holder, ok := HolderFromContext(ctx)
	if !ok {
		return nil, false
	}
	t := holder.Tenant()
	return t, t != nil
}

// IDFromContext provides fast access to tenant ID without exposing full tenant data
func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	t, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return t.ID, true
}

// MustFromContext panics if no tenant is found. Use only in handlers
// that absolutely require a tenant to function.
func MustFromContext(ctx context.Context) *Tenant {
	t, ok := FromContext(ctx)
	if !ok {
		panic("tenant: no tenant in context")
	}
	return t
}

// Run executes fn with t as the current tenant of a fresh holder.
// The holder is cleared on every exit path, including panics.
func Run(ctx context.Context, t *Tenant, fn func(ctx context.Context) error) error {
	ctx, holder := NewContext(ctx)
	holder.Set(t)
	defer holder.Clear()
	return fn(ctx)
}

// LoggerExtractor returns a function that enriches log records with tenant identity
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		t, ok := FromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return slog.Group("tenant",
			slog.String("id", t.ID.String()),
			slog.String("slug", t.Slug),
		), true
	}
}
