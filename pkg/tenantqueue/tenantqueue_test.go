package tenantqueue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/queue"
	"github.com/dmitrymomot/tenancy/pkg/rls"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantqueue"
)

type reportJob struct {
	Month string `json:"month"`
}

type seen struct {
	mu      sync.Mutex
	tenants []*tenant.Tenant
	holder  *tenant.Context
}

func (s *seen) handler(err error) queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, _ reportJob) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		t, _ := tenant.FromContext(ctx)
		s.tenants = append(s.tenants, t)
		s.holder, _ = tenant.HolderFromContext(ctx)
		return err
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pipeline struct {
	storage  *queue.MemoryStorage
	enqueuer *queue.Enqueuer
	worker   *queue.Worker
}

func newPipeline(t *testing.T, reg tenant.Registry, h queue.Handler, opts ...tenantqueue.WorkerOption) pipeline {
	t.Helper()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	enq, err := queue.NewEnqueuer(storage, queue.WithEnqueueMiddleware(tenantqueue.SendingMiddleware()))
	require.NoError(t, err)

	opts = append(opts, tenantqueue.WithLogger(discardLogger()))
	w, err := queue.NewWorker(storage,
		queue.WithWorkerLogger(discardLogger()),
		queue.WithHandlerMiddleware(tenantqueue.WorkerMiddleware(reg, opts...)),
	)
	require.NoError(t, err)
	w.RegisterHandlers(h)

	return pipeline{storage: storage, enqueuer: enq, worker: w}
}

func (p pipeline) process(t *testing.T) {
	t.Helper()
	claimed, err := p.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)
}

func newTenant(slug string) *tenant.Tenant {
	return &tenant.Tenant{ID: uuid.New(), Slug: slug, Name: slug + " inc", Active: true}
}

func TestSendingMiddleware(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme")

	t.Run("stamps tenant from context", func(t *testing.T) {
		t.Parallel()

		p := newPipeline(t, tenant.NewMemoryRegistry(acme), (&seen{}).handler(nil))
		ctx := tenant.WithTenant(context.Background(), acme)
		require.NoError(t, p.enqueuer.Enqueue(ctx, reportJob{Month: "2024-01"}))

		tasks := p.storage.Tasks()
		require.Len(t, tasks, 1)
		stamp, ok, err := tenantqueue.FromTask(tasks[0])
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, acme.ID, stamp.TenantID)
		assert.Equal(t, "acme", stamp.Slug)
		assert.Equal(t, "acme inc", stamp.Name)
	})

	t.Run("no stamp without tenant", func(t *testing.T) {
		t.Parallel()

		p := newPipeline(t, tenant.NewMemoryRegistry(acme), (&seen{}).handler(nil))
		require.NoError(t, p.enqueuer.Enqueue(context.Background(), reportJob{}))

		tasks := p.storage.Tasks()
		require.Len(t, tasks, 1)
		assert.Empty(t, tasks[0].Stamps)
	})

	t.Run("explicit stamp is not overridden", func(t *testing.T) {
		t.Parallel()

		globex := newTenant("globex")
		p := newPipeline(t, tenant.NewMemoryRegistry(acme, globex), (&seen{}).handler(nil))
		ctx := tenant.WithTenant(context.Background(), acme)
		require.NoError(t, p.enqueuer.Enqueue(ctx, reportJob{}, tenantqueue.StampFor(globex)))

		tasks := p.storage.Tasks()
		require.Len(t, tasks, 1)
		require.Len(t, tasks[0].Stamps, 1)
		stamp, _, err := tenantqueue.FromTask(tasks[0])
		require.NoError(t, err)
		assert.Equal(t, "globex", stamp.Slug)
	})

	t.Run("StampFor nil adds nothing", func(t *testing.T) {
		t.Parallel()

		p := newPipeline(t, tenant.NewMemoryRegistry(acme), (&seen{}).handler(nil))
		require.NoError(t, p.enqueuer.Enqueue(context.Background(), reportJob{}, tenantqueue.StampFor(nil)))

		tasks := p.storage.Tasks()
		require.Len(t, tasks, 1)
		assert.Empty(t, tasks[0].Stamps)
	})
}

func TestFromTask(t *testing.T) {
	t.Parallel()

	t.Run("last stamp wins", func(t *testing.T) {
		t.Parallel()

		task := &queue.Task{}
		task.AddStamp(tenantqueue.NewStamp(newTenant("first")))
		task.AddStamp(queue.Stamp{Type: "trace", Payload: []byte(`{}`)})
		task.AddStamp(tenantqueue.NewStamp(newTenant("second")))

		stamp, ok, err := tenantqueue.FromTask(task)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "second", stamp.Slug)
	})

	t.Run("missing stamp", func(t *testing.T) {
		t.Parallel()

		_, ok, err := tenantqueue.FromTask(&queue.Task{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed stamp", func(t *testing.T) {
		t.Parallel()

		task := &queue.Task{}
		task.AddStamp(queue.Stamp{Type: tenantqueue.StampType, Payload: []byte(`"nope"`)})

		_, ok, err := tenantqueue.FromTask(task)
		assert.True(t, ok)
		require.ErrorIs(t, err, tenantqueue.ErrInvalidStamp)
	})
}

func TestWorkerMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("restores tenant and clears holder afterwards", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("acme")
		s := &seen{}
		p := newPipeline(t, tenant.NewMemoryRegistry(acme), s.handler(nil))

		require.NoError(t, p.enqueuer.Enqueue(tenant.WithTenant(context.Background(), acme), reportJob{}))
		p.process(t)

		require.Len(t, s.tenants, 1)
		require.NotNil(t, s.tenants[0])
		assert.Equal(t, acme.ID, s.tenants[0].ID)
		require.NotNil(t, s.holder)
		assert.False(t, s.holder.Has())

		tasks := p.storage.Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, queue.TaskStatusCompleted, tasks[0].Status)
	})

	t.Run("clears holder when handler fails", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("acme")
		s := &seen{}
		p := newPipeline(t, tenant.NewMemoryRegistry(acme), s.handler(errors.New("boom")))

		require.NoError(t, p.enqueuer.Enqueue(tenant.WithTenant(context.Background(), acme), reportJob{}))
		p.process(t)

		require.Len(t, s.tenants, 1)
		assert.Equal(t, "acme", s.tenants[0].Slug)
		assert.False(t, s.holder.Has())
	})

	t.Run("falls back to slug when id is unknown", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("acme")
		s := &seen{}
		p := newPipeline(t, tenant.NewMemoryRegistry(acme), s.handler(nil))

		stale := &tenant.Tenant{ID: uuid.New(), Slug: "acme"}
		require.NoError(t, p.enqueuer.Enqueue(context.Background(), reportJob{}, tenantqueue.StampFor(stale)))
		p.process(t)

		require.Len(t, s.tenants, 1)
		require.NotNil(t, s.tenants[0])
		assert.Equal(t, acme.ID, s.tenants[0].ID)
	})

	t.Run("unknown tenant runs without tenant", func(t *testing.T) {
		t.Parallel()

		s := &seen{}
		p := newPipeline(t, tenant.NewMemoryRegistry(), s.handler(nil))

		require.NoError(t, p.enqueuer.Enqueue(context.Background(), reportJob{}, tenantqueue.StampFor(newTenant("ghost"))))
		p.process(t)

		require.Len(t, s.tenants, 1)
		assert.Nil(t, s.tenants[0])
	})

	t.Run("task without stamp runs without tenant", func(t *testing.T) {
		t.Parallel()

		s := &seen{}
		p := newPipeline(t, tenant.NewMemoryRegistry(newTenant("acme")), s.handler(nil))

		require.NoError(t, p.enqueuer.Enqueue(context.Background(), reportJob{}))
		p.process(t)

		require.Len(t, s.tenants, 1)
		assert.Nil(t, s.tenants[0])
	})

	t.Run("registry failure fails the task", func(t *testing.T) {
		t.Parallel()

		s := &seen{}
		p := newPipeline(t, brokenRegistry{}, s.handler(nil))

		require.NoError(t, p.enqueuer.Enqueue(context.Background(), reportJob{}, tenantqueue.StampFor(newTenant("acme"))))
		p.process(t)

		assert.Empty(t, s.tenants)
		tasks := p.storage.Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, int8(1), tasks[0].RetryCount)
		require.NotNil(t, tasks[0].Error)
		assert.Contains(t, *tasks[0].Error, "registry down")
	})

	t.Run("runs the task in a tenant transaction", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("acme")
		db := &recordingDB{}
		sc := rls.New(rls.Config{Enabled: true}, rls.WithLogger(discardLogger()))

		var inTx bool
		handler := queue.NewTaskHandler(func(ctx context.Context, _ reportJob) error {
			_, inTx = rls.TxFromContext(ctx)
			return nil
		})
		p := newPipeline(t, tenant.NewMemoryRegistry(acme), handler,
			tenantqueue.WithSessionConfigurator(sc, db))

		require.NoError(t, p.enqueuer.Enqueue(tenant.WithTenant(context.Background(), acme), reportJob{}))
		p.process(t)

		assert.True(t, inTx)
		assert.Equal(t, []string{acme.ID.String(), ""}, db.values())
		assert.Equal(t, []string{"commit"}, db.ends())
	})

	t.Run("rolls back the tenant transaction when the handler fails", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("acme")
		db := &recordingDB{}
		sc := rls.New(rls.Config{Enabled: true}, rls.WithLogger(discardLogger()))
		s := &seen{}
		p := newPipeline(t, tenant.NewMemoryRegistry(acme), s.handler(errors.New("boom")),
			tenantqueue.WithSessionConfigurator(sc, db))

		require.NoError(t, p.enqueuer.Enqueue(tenant.WithTenant(context.Background(), acme), reportJob{}))
		p.process(t)

		assert.Equal(t, []string{acme.ID.String()}, db.values())
		assert.Equal(t, []string{"rollback"}, db.ends())
		assert.False(t, s.holder.Has())
	})

	t.Run("tasks without tenant skip the transaction", func(t *testing.T) {
		t.Parallel()

		db := &recordingDB{}
		sc := rls.New(rls.Config{Enabled: true}, rls.WithLogger(discardLogger()))
		p := newPipeline(t, tenant.NewMemoryRegistry(), (&seen{}).handler(nil),
			tenantqueue.WithSessionConfigurator(sc, db))

		require.NoError(t, p.enqueuer.Enqueue(context.Background(), reportJob{}))
		p.process(t)

		assert.Empty(t, db.ends())
	})
}

var errRegistryDown = errors.New("registry down")

type brokenRegistry struct{}

func (brokenRegistry) GetBySlug(context.Context, string) (*tenant.Tenant, error) {
	return nil, errRegistryDown
}

func (brokenRegistry) FindBySlug(context.Context, string) (*tenant.Tenant, error) {
	return nil, errRegistryDown
}

func (brokenRegistry) FindByID(context.Context, uuid.UUID) (*tenant.Tenant, error) {
	return nil, errRegistryDown
}

func (brokenRegistry) GetAll(context.Context) ([]*tenant.Tenant, error) {
	return nil, errRegistryDown
}

type versionRow struct{}

func (versionRow) Scan(dest ...any) error {
	*dest[0].(*string) = "PostgreSQL 16.3 on x86_64-pc-linux-gnu"
	return nil
}

// recordingDB begins recordingTx transactions and records the values passed
// to set_config and how each transaction ended.
type recordingDB struct {
	mu      sync.Mutex
	got     []string
	endings []string
}

func (d *recordingDB) Begin(context.Context) (pgx.Tx, error) {
	return &recordingTx{db: d}, nil
}

func (d *recordingDB) record(values *[]string, v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	*values = append(*values, v)
}

func (d *recordingDB) values() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.got...)
}

func (d *recordingDB) ends() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.endings...)
}

// recordingTx implements the parts of pgx.Tx used by rls.
type recordingTx struct {
	pgx.Tx
	db   *recordingDB
	done bool
}

func (tx *recordingTx) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	tx.db.record(&tx.db.got, args[1].(string))
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (tx *recordingTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return versionRow{}
}

func (tx *recordingTx) Commit(context.Context) error {
	tx.done = true
	tx.db.record(&tx.db.endings, "commit")
	return nil
}

func (tx *recordingTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.db.record(&tx.db.endings, "rollback")
	return nil
}
