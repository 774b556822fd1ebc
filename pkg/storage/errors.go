package storage

import "errors"

var (
	ErrInvalidKey    = errors.New("invalid object key")
	ErrInvalidConfig = errors.New("invalid storage configuration")
	ErrNoTenant      = errors.New("storage: tenant-scoped access without a tenant in context")

	ErrObjectNotFound    = errors.New("object not found")
	ErrDirectoryNotFound = errors.New("directory not found")

	ErrFailedToWrite  = errors.New("failed to write object")
	ErrFailedToRead   = errors.New("failed to read object")
	ErrFailedToDelete = errors.New("failed to delete object")
	ErrFailedToList   = errors.New("failed to list objects")

	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrServiceUnavailable = errors.New("storage service temporarily unavailable")
	ErrOperationTimeout   = errors.New("storage operation timed out")
	ErrOperationCanceled  = errors.New("storage operation canceled")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")
)
