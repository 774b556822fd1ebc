package tenantstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/rls"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// Note is a row of the tenant-owned tenant_notes table.
type Note struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Notes stores notes of the tenant found in the context. Every query runs in
// a transaction with the tenant session variable set, and also filters by
// tenant_id so isolation holds when row-level security is disabled.
type Notes struct {
	db rls.TxBeginner
	sc *rls.SessionConfigurator
}

// NewNotes creates a notes store. sc may be nil.
func NewNotes(db rls.TxBeginner, sc *rls.SessionConfigurator) *Notes {
	return &Notes{db: db, sc: sc}
}

// Add stores a note for the current tenant.
func (n *Notes) Add(ctx context.Context, body string) (*Note, error) {
	t, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, ErrNoTenant
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyNote
	}

	note := &Note{ID: uuid.New(), TenantID: t.ID, Body: body}
	err := rls.InTenantTx(ctx, n.db, n.sc, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO tenant_notes (id, tenant_id, body) VALUES ($1, $2, $3) RETURNING created_at`,
			note.ID, note.TenantID, note.Body,
		).Scan(&note.CreatedAt)
	})
	if err != nil {
		if pg.IsInsufficientPrivilegeError(err) {
			return nil, fmt.Errorf("%w: %v", ErrRowLevelDenied, err)
		}
		return nil, fmt.Errorf("add note: %w", err)
	}
	return note, nil
}

// List returns the current tenant's notes, newest first.
func (n *Notes) List(ctx context.Context) ([]Note, error) {
	t, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, ErrNoTenant
	}

	var notes []Note
	err := rls.InTenantTx(ctx, n.db, n.sc, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id, tenant_id, body, created_at FROM tenant_notes
			 WHERE tenant_id = $1 ORDER BY created_at DESC, id`,
			t.ID)
		if err != nil {
			return err
		}
		notes, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Note])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// Get returns one note of the current tenant or ErrNoteNotFound.
func (n *Notes) Get(ctx context.Context, id uuid.UUID) (*Note, error) {
	t, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, ErrNoTenant
	}

	var note Note
	err := rls.InTenantTx(ctx, n.db, n.sc, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT id, tenant_id, body, created_at FROM tenant_notes WHERE id = $1 AND tenant_id = $2`,
			id, t.ID,
		).Scan(&note.ID, &note.TenantID, &note.Body, &note.CreatedAt)
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("get note %s: %w", id, err)
	}
	return &note, nil
}
