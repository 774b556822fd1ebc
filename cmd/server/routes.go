package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/clientip"
	"github.com/dmitrymomot/tenancy/pkg/environment"
	"github.com/dmitrymomot/tenancy/pkg/httpserver"
	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/queue"
	"github.com/dmitrymomot/tenancy/pkg/ratelimiter"
	"github.com/dmitrymomot/tenancy/pkg/requestid"
	"github.com/dmitrymomot/tenancy/pkg/storage"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantstore"
)

const (
	readinessTimeout = 5 * time.Second
	maxUploadSize    = 32 << 20
	uploadsDir       = "uploads"
)

type routerConfig struct {
	env           environment.Environment
	tenantPrefix  bool // mount tenant routes under /{tenant}
	requireTenant bool
	resolver      tenant.Resolver
	limiter       *ratelimiter.Limiter // nil disables rate limiting
	checks        []httpserver.Check
	log           *slog.Logger
}

type enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
}

type noteStore interface {
	noteReader
	Add(ctx context.Context, body string) (*tenantstore.Note, error)
	List(ctx context.Context) ([]tenantstore.Note, error)
}

type api struct {
	log      *slog.Logger
	notes    noteStore
	files    *storage.Scoped
	enqueuer enqueuer
}

// newRouter mounts health probes outside tenant resolution. When the path
// strategy runs, alone or in a chain, the tenant routes live under /{tenant}/;
// otherwise they live at the root.
func newRouter(cfg routerConfig, a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware, clientip.Middleware(), environment.Middleware(cfg.env))

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(cfg.log, readinessTimeout, cfg.checks...))

	tenantRoutes := func(r chi.Router) {
		r.Use(tenant.Middleware(cfg.resolver,
			tenant.WithRequireTenant(cfg.requireTenant),
			tenant.WithLogger(cfg.log),
		))
		if cfg.limiter != nil {
			r.Use(ratelimiter.Middleware(cfg.limiter, ratelimiter.ByTenant(), ratelimiter.WithLogger(cfg.log)))
		}
		r.Get("/tenant", a.currentTenant)

		r.Group(func(r chi.Router) {
			r.Use(tenant.RequireTenant(nil))

			r.Get("/notes", a.listNotes)
			r.Post("/notes", a.createNote)
			r.Get("/notes/{id}", a.getNote)

			r.Get("/files", a.listFiles)
			r.Post("/files", a.uploadFile)
			r.Get("/files/*", a.downloadFile)
		})
	}

	if cfg.tenantPrefix {
		r.Route("/{tenant}", tenantRoutes)
	} else {
		r.Group(tenantRoutes)
	}
	return r
}

type tenantView struct {
	ID     uuid.UUID `json:"id"`
	Slug   string    `json:"slug"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
}

// currentTenant answers {"tenant": null} when the request resolved no tenant.
func (a *api) currentTenant(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"tenant": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant": tenantView{
		ID:     t.ID,
		Slug:   t.Slug,
		Name:   t.Name,
		Active: t.Active,
	}})
}

func (a *api) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := a.notes.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

type createNoteRequest struct {
	Body   string `json:"body"`
	Notify string `json:"notify,omitempty"`
}

// createNote stores the note and, when Notify is set, queues an email that the
// worker sends under the same tenant.
func (a *api) createNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	note, err := a.notes.Add(r.Context(), req.Body)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if req.Notify != "" {
		if err := a.enqueuer.Enqueue(r.Context(), noteCreated{NoteID: note.ID, Recipient: req.Notify}); err != nil {
			a.log.ErrorContext(r.Context(), "failed to queue note notification", logger.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, note)
}

func (a *api) getNote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}
	note, err := a.notes.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (a *api) listFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := a.files.List(r.Context(), uploadsDir)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": entries})
}

func (a *api) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}

	obj, err := storage.SaveUpload(r.Context(), a.files, headers[0], uploadsDir)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	url, err := a.files.URL(r.Context(), obj.Key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"file": obj, "url": url})
}

func (a *api) downloadFile(w http.ResponseWriter, r *http.Request) {
	rc, err := a.files.Get(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		a.log.WarnContext(r.Context(), "file download interrupted", logger.Error(err))
	}
}

// fail maps domain errors to status codes and logs everything else.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenantstore.ErrEmptyNote),
		errors.Is(err, storage.ErrInvalidKey):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, tenantstore.ErrNoteNotFound),
		errors.Is(err, storage.ErrObjectNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, tenantstore.ErrNoTenant),
		errors.Is(err, storage.ErrNoTenant):
		writeError(w, http.StatusBadRequest, "tenant is required")
	default:
		a.log.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
