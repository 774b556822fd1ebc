// Package storage stores binary objects on local disk or in S3 behind one
// Storage interface.
//
// Scoped wraps any backend and confines keys to the current tenant:
//
//	files := storage.NewScoped(backend)
//	obj, err := files.Put(ctx, "avatars/me.png", r, "image/png")
//	// stored as tenants/<slug>/avatars/me.png
//
// Keys are slash-separated and relative. Keys containing ".." are rejected by
// every backend, so a scoped key can never reach another tenant's prefix.
//
// SaveUpload stores a multipart.FileHeader under a sanitized filename with the
// content type sniffed from its first bytes.
package storage
