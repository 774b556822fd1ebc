package rls

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// DefaultSessionVariable is read by row-level security policies,
// e.g. USING (tenant_id = current_setting('app.tenant_id', true)::uuid).
const DefaultSessionVariable = "app.tenant_id"

const (
	setConfigSQL = "SELECT set_config($1, $2, true)"
	versionSQL   = "SELECT version()"
)

var (
	ErrSetSessionVariable = errors.New("rls: failed to set session variable")
	ErrBeginTx            = errors.New("rls: failed to begin transaction")
	ErrCommitTx           = errors.New("rls: failed to commit transaction")
)

// Config controls the session configurator.
type Config struct {
	Enabled         bool   `yaml:"enabled" env:"TENANT_RLS_ENABLED" envDefault:"true"`
	SessionVariable string `yaml:"session_variable" env:"TENANT_RLS_SESSION_VARIABLE" envDefault:"app.tenant_id"`
}

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Option configures SessionConfigurator.
type Option func(*SessionConfigurator)

// WithLogger sets the logger for swallowed failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SessionConfigurator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// SessionConfigurator publishes the current tenant ID to the database session
// so that row-level security policies can filter by it.
//
// The variable is always set transaction-locally (set_config(..., true)):
// it disappears on commit or rollback and can never reach another unit of
// work through a pooled connection. Outside a transaction it is a no-op,
// so pass a pgx.Tx or use InTenantTx.
type SessionConfigurator struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	detected bool
	postgres bool
}

// New creates a configurator. An empty SessionVariable means DefaultSessionVariable.
func New(cfg Config, opts ...Option) *SessionConfigurator {
	if strings.TrimSpace(cfg.SessionVariable) == "" {
		cfg.SessionVariable = DefaultSessionVariable
	}
	s := &SessionConfigurator{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether the configurator touches the database at all.
func (s *SessionConfigurator) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// SessionVariable returns the configured variable name.
func (s *SessionConfigurator) SessionVariable() string {
	return s.cfg.SessionVariable
}

// Set publishes t.ID. Failures are logged and swallowed.
func (s *SessionConfigurator) Set(ctx context.Context, db Querier, t *tenant.Tenant) {
	if t == nil {
		return
	}
	if err := s.apply(ctx, db, t.ID.String()); err != nil {
		s.logger.ErrorContext(ctx, "failed to set tenant session variable",
			slog.String("variable", s.cfg.SessionVariable),
			slog.String("tenant_id", t.ID.String()),
			slog.String("error", err.Error()))
	}
}

// Reset restores prev.ID, or the empty string when prev is nil.
// Failures are logged and swallowed.
func (s *SessionConfigurator) Reset(ctx context.Context, db Querier, prev *tenant.Tenant) {
	value := ""
	if prev != nil {
		value = prev.ID.String()
	}
	if err := s.apply(ctx, db, value); err != nil {
		s.logger.ErrorContext(ctx, "failed to reset tenant session variable",
			slog.String("variable", s.cfg.SessionVariable),
			slog.String("error", err.Error()))
	}
}

func (s *SessionConfigurator) apply(ctx context.Context, db Querier, value string) error {
	if !s.Enabled() || db == nil {
		return nil
	}
	if !s.isPostgres(ctx, db) {
		return nil
	}
	if _, err := db.Exec(ctx, setConfigSQL, s.cfg.SessionVariable, value); err != nil {
		return errors.Join(ErrSetSessionVariable, err)
	}
	return nil
}

// isPostgres detects the engine once per configurator. A failed probe is not
// remembered, so the next call retries.
func (s *SessionConfigurator) isPostgres(ctx context.Context, db Querier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detected {
		return s.postgres
	}

	var version string
	if err := db.QueryRow(ctx, versionSQL).Scan(&version); err != nil {
		s.logger.WarnContext(ctx, "failed to detect database engine", slog.String("error", err.Error()))
		return false
	}

	s.detected = true
	s.postgres = strings.Contains(version, "PostgreSQL") && !strings.Contains(version, "CockroachDB")
	if !s.postgres {
		s.logger.InfoContext(ctx, "row-level security disabled: database is not PostgreSQL",
			slog.String("version", version))
	}
	return s.postgres
}

type txKey struct{}

// ContextWithTx attaches tx to ctx. InTenantTx called with such a context
// joins tx through a savepoint instead of beginning a new transaction.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction attached by ContextWithTx.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

// InTenantTx runs fn in a transaction scoped to the tenant found in ctx.
// Unlike Set, a failure to publish the tenant aborts the transaction.
// Without a tenant in ctx (or with sc nil/disabled) fn runs in a plain transaction.
//
// If ctx already carries a transaction, fn runs in a savepoint of it and db is
// not used. The context passed to fn carries the transaction fn receives.
func InTenantTx(ctx context.Context, db TxBeginner, sc *SessionConfigurator, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if outer, ok := TxFromContext(ctx); ok {
		db = outer
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.Join(ErrBeginTx, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t, ok := tenant.FromContext(ctx); ok && sc.Enabled() {
		if err := sc.apply(ctx, tx, t.ID.String()); err != nil {
			return err
		}
	}

	if err := fn(ContextWithTx(ctx, tx), tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrCommitTx, err)
	}
	return nil
}
