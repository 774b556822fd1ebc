package tenantqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenancy/pkg/queue"
	"github.com/dmitrymomot/tenancy/pkg/rls"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

type workerConfig struct {
	sc     *rls.SessionConfigurator
	db     rls.TxBeginner
	logger *slog.Logger
}

// WorkerOption configures WorkerMiddleware.
type WorkerOption func(*workerConfig)

// WithSessionConfigurator runs every task that restores a tenant inside a
// transaction on db with the tenant session variable set. The transaction
// travels in the task context, so stores using rls.InTenantTx join it. It
// commits when the handler succeeds and rolls back otherwise.
func WithSessionConfigurator(sc *rls.SessionConfigurator, db rls.TxBeginner) WorkerOption {
	return func(c *workerConfig) {
		c.sc = sc
		c.db = db
	}
}

// WithLogger sets the logger for stamp problems.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(c *workerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WorkerMiddleware restores the tenant recorded by the last tenant stamp.
//
// The tenant is set on a fresh holder for the duration of the task and cleared
// on every exit path. With WithSessionConfigurator the session variable is
// restored to the previous tenant on success and dropped with the rolled back
// transaction otherwise. A stamp naming a
// tenant that no longer exists is logged and the task runs without a tenant.
// Registry failures fail the task so it is retried.
func WorkerMiddleware(reg tenant.Registry, opts ...WorkerOption) queue.HandlerMiddleware {
	cfg := &workerConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next queue.HandleFunc) queue.HandleFunc {
		return func(ctx context.Context, task *queue.Task) error {
			stamp, ok, err := FromTask(task)
			if err != nil {
				cfg.logger.WarnContext(ctx, "ignoring malformed tenant stamp",
					slog.String("task_id", task.ID.String()),
					slog.String("error", err.Error()))
				return next(ctx, task)
			}
			if !ok {
				return next(ctx, task)
			}

			t, err := lookup(ctx, reg, stamp)
			if err != nil {
				return fmt.Errorf("restore tenant %q for task %s: %w", stamp.Slug, task.ID, err)
			}
			if t == nil {
				cfg.logger.WarnContext(ctx, "stamped tenant not found, running task without tenant",
					slog.String("task_id", task.ID.String()),
					slog.String("task_name", task.TaskName),
					slog.String("tenant_id", stamp.TenantID.String()),
					slog.String("tenant_slug", stamp.Slug))
				return next(ctx, task)
			}

			prev, _ := tenant.FromContext(ctx)
			taskCtx, holder := tenant.NewContext(ctx)
			holder.Set(t)
			defer holder.Clear()

			if !cfg.sc.Enabled() || cfg.db == nil {
				return next(taskCtx, task)
			}
			return rls.InTenantTx(taskCtx, cfg.db, cfg.sc, func(ctx context.Context, tx pgx.Tx) error {
				if err := next(ctx, task); err != nil {
					return err
				}
				// A savepoint keeps the variable in the outer transaction after release.
				cfg.sc.Reset(ctx, tx, prev)
				return nil
			})
		}
	}
}

func lookup(ctx context.Context, reg tenant.Registry, stamp TenantStamp) (*tenant.Tenant, error) {
	if stamp.TenantID != uuid.Nil {
		t, err := reg.FindByID(ctx, stamp.TenantID)
		if err != nil || t != nil {
			return t, err
		}
	}
	if stamp.Slug == "" {
		return nil, nil
	}
	return reg.FindBySlug(ctx, stamp.Slug)
}
