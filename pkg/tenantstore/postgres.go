package tenantstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/slug"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const tenantColumns = `id, slug, name, active, mailer_dsn, messenger_dsn, created_at`

// Postgres is a tenant.Registry over the tenants table.
type Postgres struct {
	db DB
}

var _ tenant.Registry = (*Postgres)(nil)

// New creates a registry on db.
func New(db DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	t, err := p.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (p *Postgres) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return p.findOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
}

func (p *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return p.findOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
}

// GetAll returns every tenant ordered by slug.
func (p *Postgres) GetAll(ctx context.Context) ([]*tenant.Tenant, error) {
	rows, err := p.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return out, nil
}

// Create inserts t. A zero ID is generated by the database; ID and CreatedAt
// are written back to t.
func (p *Postgres) Create(ctx context.Context, t *tenant.Tenant) error {
	if t == nil || !slug.Valid(t.Slug) {
		return ErrInvalidTenant
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	err := p.db.QueryRow(ctx,
		`INSERT INTO tenants (id, slug, name, active, mailer_dsn, messenger_dsn)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		t.ID, t.Slug, t.Name, t.Active, t.MailerDSN, t.MessengerDSN,
	).Scan(&t.CreatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrSlugTaken, t.Slug)
		}
		return fmt.Errorf("create tenant %q: %w", t.Slug, err)
	}
	return nil
}

// SetActive toggles the active flag. Slugs are immutable, so there is no
// general update.
func (p *Postgres) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := p.db.Exec(ctx, `UPDATE tenants SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("update tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (p *Postgres) findOne(ctx context.Context, query string, arg any) (*tenant.Tenant, error) {
	t, err := scanTenant(p.db.QueryRow(ctx, query, arg))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	return t, nil
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t         tenant.Tenant
		createdAt time.Time
	)
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Active, &t.MailerDSN, &t.MessengerDSN, &createdAt); err != nil {
		return nil, err
	}
	t.CreatedAt = createdAt.UTC()
	return &t, nil
}
