package tenantstore

import "errors"

var (
	ErrSlugTaken      = errors.New("tenant slug is already taken")
	ErrInvalidTenant  = errors.New("tenant must have a slug")
	ErrNoTenant       = errors.New("operation requires a tenant in context")
	ErrEmptyNote      = errors.New("note body is empty")
	ErrNoteNotFound   = errors.New("note not found")
	ErrRowLevelDenied = errors.New("row-level security rejected the write")
)
