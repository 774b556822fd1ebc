package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/environment"
	"github.com/dmitrymomot/tenancy/pkg/queue"
	"github.com/dmitrymomot/tenancy/pkg/ratelimiter"
	"github.com/dmitrymomot/tenancy/pkg/requestid"
	"github.com/dmitrymomot/tenancy/pkg/storage"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantqueue"
	"github.com/dmitrymomot/tenancy/pkg/tenantstore"
)

// memoryNotes keeps notes per tenant the way tenantstore.Notes does.
type memoryNotes struct {
	mu    sync.Mutex
	notes []tenantstore.Note
}

func (m *memoryNotes) Add(ctx context.Context, body string) (*tenantstore.Note, error) {
	t, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, tenantstore.ErrNoTenant
	}
	if body == "" {
		return nil, tenantstore.ErrEmptyNote
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := tenantstore.Note{ID: uuid.New(), TenantID: t.ID, Body: body, CreatedAt: time.Now()}
	m.notes = append(m.notes, n)
	return &n, nil
}

func (m *memoryNotes) List(ctx context.Context) ([]tenantstore.Note, error) {
	t, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, tenantstore.ErrNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []tenantstore.Note{}
	for _, n := range m.notes {
		if n.TenantID == t.ID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memoryNotes) Get(ctx context.Context, id uuid.UUID) (*tenantstore.Note, error) {
	notes, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		if n.ID == id {
			return &n, nil
		}
	}
	return nil, tenantstore.ErrNoteNotFound
}

var (
	headerStrategy = tenant.Config{Resolver: tenant.StrategyHeader}
	pathStrategy   = tenant.Config{Resolver: tenant.StrategyPath}
)

type testApp struct {
	handler http.Handler
	tasks   *queue.MemoryStorage
	acme    *tenant.Tenant
	globex  *tenant.Tenant
}

func newTestApp(t *testing.T, cfg tenant.Config, limiter ...*ratelimiter.Limiter) *testApp {
	t.Helper()

	acme := &tenant.Tenant{ID: uuid.New(), Slug: "acme", Name: "Acme", Active: true, MailerDSN: "postmark://secret@default"}
	globex := &tenant.Tenant{ID: uuid.New(), Slug: "globex", Name: "Globex", Active: true}
	reg := tenant.NewMemoryRegistry(acme, globex)

	resolver, err := tenant.NewResolver(cfg, reg, nil)
	require.NoError(t, err)

	local, err := storage.NewLocal(t.TempDir(), "/files/")
	require.NoError(t, err)

	tasks := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = tasks.Close() })
	enq, err := queue.NewEnqueuer(tasks, queue.WithEnqueueMiddleware(
		requestid.SendingMiddleware(),
		tenantqueue.SendingMiddleware(),
	))
	require.NoError(t, err)

	log := slog.New(slog.DiscardHandler)
	rc := routerConfig{
		env:          environment.Test,
		tenantPrefix: cfg.Uses(tenant.StrategyPath),
		resolver:     resolver,
		log:          log,
	}
	if len(limiter) > 0 {
		rc.limiter = limiter[0]
	}
	handler := newRouter(rc, &api{
		log:      log,
		notes:    &memoryNotes{},
		files:    storage.NewScoped(local),
		enqueuer: enq,
	})

	return &testApp{handler: handler, tasks: tasks, acme: acme, globex: globex}
}

func (a *testApp) do(t *testing.T, method, target, slug string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if slug != "" {
		req.Header.Set("X-Tenant-Slug", slug)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthRoutesSkipTenantResolution(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, headerStrategy)

	rec := app.do(t, http.MethodGet, "/health/live", "unknown", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestid.Header))

	rec = app.do(t, http.MethodGet, "/health/ready", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCurrentTenant(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, headerStrategy)

	t.Run("resolved tenant without mailer DSN", func(t *testing.T) {
		t.Parallel()
		rec := app.do(t, http.MethodGet, "/tenant", "acme", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		view := body["tenant"].(map[string]any)
		assert.Equal(t, "acme", view["slug"])
		assert.Equal(t, app.acme.ID.String(), view["id"])
		assert.NotContains(t, rec.Body.String(), "secret")
	})

	t.Run("no tenant", func(t *testing.T) {
		t.Parallel()
		rec := app.do(t, http.MethodGet, "/tenant", "", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, decode(t, rec)["tenant"])
	})

	t.Run("unknown slug resolves to no tenant", func(t *testing.T) {
		t.Parallel()
		rec := app.do(t, http.MethodGet, "/tenant", "initech", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, decode(t, rec)["tenant"])
	})
}

func TestNotesRoutes(t *testing.T) {
	t.Parallel()

	t.Run("require a tenant", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, headerStrategy)
		rec := app.do(t, http.MethodGet, "/notes", "", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("are isolated per tenant", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, headerStrategy)

		rec := app.do(t, http.MethodPost, "/notes", "acme", bytes.NewBufferString(`{"body":"hello"}`), "application/json")
		require.Equal(t, http.StatusCreated, rec.Code)
		id := decode(t, rec)["id"].(string)

		rec = app.do(t, http.MethodGet, "/notes/"+id, "acme", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = app.do(t, http.MethodGet, "/notes/"+id, "globex", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.do(t, http.MethodGet, "/notes", "globex", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode(t, rec)["notes"])
	})

	t.Run("reject bad input", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, headerStrategy)

		rec := app.do(t, http.MethodPost, "/notes", "acme", bytes.NewBufferString(`{"body":""}`), "application/json")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = app.do(t, http.MethodPost, "/notes", "acme", bytes.NewBufferString(`{`), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = app.do(t, http.MethodGet, "/notes/not-a-uuid", "acme", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("queue a notification stamped with the tenant", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, headerStrategy)

		rec := app.do(t, http.MethodPost, "/notes", "acme",
			bytes.NewBufferString(`{"body":"hello","notify":"ops@example.com"}`), "application/json")
		require.Equal(t, http.StatusCreated, rec.Code)

		tasks := app.tasks.Tasks()
		require.Len(t, tasks, 1)

		stamp, ok, err := tenantqueue.FromTask(tasks[0])
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, app.acme.ID, stamp.TenantID)
		assert.True(t, tasks[0].HasStamp(requestid.StampType))
	})
}

func TestChainWithPathMountsTenantPrefix(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, tenant.Config{
		Resolver: tenant.StrategyChain,
		Chain: tenant.ChainConfig{
			Order:           []string{tenant.StrategyPath, tenant.StrategyHeader},
			HeaderAllowList: []string{"X-Tenant-Slug"},
		},
	})

	slugOf := func(t *testing.T, rec *httptest.ResponseRecorder) any {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		view, ok := decode(t, rec)["tenant"].(map[string]any)
		require.True(t, ok)
		return view["slug"]
	}

	assert.Equal(t, "acme", slugOf(t, app.do(t, http.MethodGet, "/acme/tenant", "", nil, "")))
	assert.Equal(t, "acme", slugOf(t, app.do(t, http.MethodGet, "/acme/tenant", "globex", nil, "")))
	assert.Equal(t, "globex", slugOf(t, app.do(t, http.MethodGet, "/portal/tenant", "globex", nil, "")))

	rec := app.do(t, http.MethodGet, "/health/live", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFilesRoutes(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, pathStrategy)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "../../report.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("quarterly numbers"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := app.do(t, http.MethodPost, "/acme/files", "", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "/files/tenants/acme/uploads/report.txt", body["url"])

	rec = app.do(t, http.MethodGet, "/acme/files/uploads/report.txt", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quarterly numbers", rec.Body.String())

	rec = app.do(t, http.MethodGet, "/globex/files/uploads/report.txt", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodGet, "/acme/files", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["files"], 1)

	rec = app.do(t, http.MethodPost, "/acme/files", "", bytes.NewBufferString("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitPerTenant(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	limiter, err := ratelimiter.New(store, ratelimiter.Config{
		Capacity:       2,
		RefillRate:     1,
		RefillInterval: time.Hour,
		Overrides:      map[string]int{"globex": 5},
	})
	require.NoError(t, err)
	app := newTestApp(t, headerStrategy, limiter)

	for range 2 {
		require.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/tenant", "acme", nil, "").Code)
	}
	rec := app.do(t, http.MethodGet, "/tenant", "acme", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = app.do(t, http.MethodGet, "/tenant", "globex", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))

	rec = app.do(t, http.MethodGet, "/health/live", "acme", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
