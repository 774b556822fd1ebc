package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tenant represents a tenant in the system with minimal information
// needed for request-scoped operations.
// Slug is unique and immutable once assigned; every resolution strategy keys on it.
type Tenant struct {
	ID           uuid.UUID `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Active       bool      `json:"active"`
	MailerDSN    string    `json:"mailer_dsn,omitempty"`
	MessengerDSN string    `json:"messenger_dsn,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SameAs reports whether both tenants carry the same slug.
// IDs are not compared.
func (t *Tenant) SameAs(other *Tenant) bool {
	if t == nil || other == nil {
		return false
	}
	return t.Slug == other.Slug
}

// Registry loads tenant records from a persistent store.
// Implementations must be safe for concurrent use; the core only reads from it.
type Registry interface {
	// GetBySlug returns ErrTenantNotFound if no tenant matches.
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)

	// FindBySlug returns nil, nil if no tenant matches.
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)

	// FindByID returns nil, nil if no tenant matches.
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// GetAll returns every known tenant.
	GetAll(ctx context.Context) ([]*Tenant, error)
}
