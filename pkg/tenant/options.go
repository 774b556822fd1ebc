package tenant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/tenancy/pkg/environment"
)

// ErrorHandler handles errors that occur during tenant resolution.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// config holds middleware configuration.
type config struct {
	errorHandler  ErrorHandler
	skipPaths     []string
	requireActive bool
	requireTenant bool
	diagnostics   *bool
	logger        *slog.Logger
}

// Option configures the middleware.
type Option func(*config)

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *config) {
		c.errorHandler = handler
	}
}

// WithSkipPaths sets path prefixes that should skip tenant resolution.
func WithSkipPaths(paths []string) Option {
	return func(c *config) {
		c.skipPaths = paths
	}
}

// WithRequireActive ensures only active tenants are allowed.
func WithRequireActive(require bool) Option {
	return func(c *config) {
		c.requireActive = require
	}
}

// WithRequireTenant rejects requests for which no tenant was resolved.
func WithRequireTenant(require bool) Option {
	return func(c *config) {
		c.requireTenant = require
	}
}

// WithDiagnostics forces diagnostics in error bodies on or off.
// By default they are shown only when the request context carries
// an environment other than production.
func WithDiagnostics(enabled bool) Option {
	return func(c *config) {
		c.diagnostics = &enabled
	}
}

// WithLogger sets a custom logger for the middleware.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Error types reported in non-production error bodies.
const (
	ErrorTypeResolutionFailed    = "resolution_failed"
	ErrorTypeAmbiguousResolution = "ambiguous_resolution"
)

// ErrorResponse is the JSON body written by the default error handler.
type ErrorResponse struct {
	Error            string         `json:"error"`
	Code             int            `json:"code"`
	Diagnostics      map[string]any `json:"diagnostics,omitempty"`
	ExceptionMessage string         `json:"exception_message,omitempty"`
	Type             string         `json:"type,omitempty"`
}

type diagnoser interface {
	Diagnostics() map[string]any
}

// newDefaultErrorHandler maps resolution failures to 400, inactive tenants to 403,
// and anything else to 500. Diagnostics are attached only when exposeDiagnostics says so.
func newDefaultErrorHandler(cfg *config) ErrorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		resp := ErrorResponse{Code: http.StatusInternalServerError, Error: "Internal server error"}
		var errType string

		switch {
		case errors.Is(err, ErrAmbiguousTenant):
			resp.Code, resp.Error = http.StatusBadRequest, "Tenant resolution is ambiguous"
			errType = ErrorTypeAmbiguousResolution
		case errors.Is(err, ErrNoTenantResolved), errors.Is(err, ErrNoTenantInContext):
			resp.Code, resp.Error = http.StatusBadRequest, "Tenant could not be resolved"
			errType = ErrorTypeResolutionFailed
		case errors.Is(err, ErrInactiveTenant):
			resp.Code, resp.Error = http.StatusForbidden, "Tenant is inactive"
		case errors.Is(err, ErrTenantNotFound):
			resp.Code, resp.Error = http.StatusNotFound, "Tenant not found"
		}

		if errType != "" && cfg.exposeDiagnostics(r) {
			resp.Type = errType
			resp.ExceptionMessage = err.Error()
			var d diagnoser
			if errors.As(err, &d) {
				resp.Diagnostics = d.Diagnostics()
			}
		}

		writeJSON(w, resp.Code, resp)
	}
}

func (c *config) exposeDiagnostics(r *http.Request) bool {
	if c.diagnostics != nil {
		return *c.diagnostics
	}
	ctx := r.Context()
	return environment.FromContext(ctx) != "" && !environment.IsProduction(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
