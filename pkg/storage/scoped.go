package storage

import (
	"context"
	"io"
	"strings"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// tenantRoot is the top-level directory holding every tenant's objects.
const tenantRoot = "tenants"

// Scoped confines every key to tenants/<slug>/ of the tenant in context.
// Calls without a tenant fail with ErrNoTenant; there is no global namespace.
type Scoped struct {
	next Storage
}

// NewScoped wraps next.
func NewScoped(next Storage) *Scoped {
	return &Scoped{next: next}
}

// Prefix returns the key prefix of the tenant in ctx.
func Prefix(ctx context.Context) (string, error) {
	t, ok := tenant.FromContext(ctx)
	if !ok {
		return "", ErrNoTenant
	}
	return tenantRoot + "/" + t.Slug + "/", nil
}

func (s *Scoped) Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error) {
	prefix, full, err := s.scope(ctx, key)
	if err != nil {
		return nil, err
	}
	obj, err := s.next.Put(ctx, full, r, contentType)
	if err != nil {
		return nil, err
	}
	obj.Key = strings.TrimPrefix(obj.Key, prefix)
	return obj, nil
}

func (s *Scoped) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	_, full, err := s.scope(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.next.Get(ctx, full)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	_, full, err := s.scope(ctx, key)
	if err != nil {
		return err
	}
	return s.next.Delete(ctx, full)
}

func (s *Scoped) DeleteDir(ctx context.Context, dir string) error {
	_, full, err := s.scope(ctx, dir)
	if err != nil {
		return err
	}
	return s.next.DeleteDir(ctx, full)
}

func (s *Scoped) Exists(ctx context.Context, key string) (bool, error) {
	_, full, err := s.scope(ctx, key)
	if err != nil {
		return false, err
	}
	return s.next.Exists(ctx, full)
}

// List returns entries with keys relative to the tenant's namespace.
func (s *Scoped) List(ctx context.Context, dir string) ([]Entry, error) {
	prefix, err := Prefix(ctx)
	if err != nil {
		return nil, err
	}
	dir, err = cleanDir(dir)
	if err != nil {
		return nil, err
	}
	entries, err := s.next.List(ctx, prefix+dir)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Key = strings.TrimPrefix(entries[i].Key, prefix)
	}
	return entries, nil
}

func (s *Scoped) URL(ctx context.Context, key string) (string, error) {
	_, full, err := s.scope(ctx, key)
	if err != nil {
		return "", err
	}
	return s.next.URL(ctx, full)
}

// Purge removes everything stored for the tenant in ctx.
func (s *Scoped) Purge(ctx context.Context) error {
	prefix, err := Prefix(ctx)
	if err != nil {
		return err
	}
	return s.next.DeleteDir(ctx, strings.TrimSuffix(prefix, "/"))
}

func (s *Scoped) scope(ctx context.Context, key string) (string, string, error) {
	prefix, err := Prefix(ctx)
	if err != nil {
		return "", "", err
	}
	key, err = CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return prefix, prefix + key, nil
}
