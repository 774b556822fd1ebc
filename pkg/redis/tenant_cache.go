package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// TenantCache is a tenant.Cache shared by every instance of the service.
// Values are JSON-encoded tenants stored under "<prefix>:tenants:<key>".
type TenantCache struct {
	db     redis.UniversalClient
	prefix string
	logger *slog.Logger
}

var _ tenant.Cache = (*TenantCache)(nil)

// CacheOption configures TenantCache.
type CacheOption func(*TenantCache)

// WithCacheLogger sets the logger for cache errors.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *TenantCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTenantCache creates a cache on db. The client stays owned by the caller.
func NewTenantCache(db redis.UniversalClient, prefix string, opts ...CacheOption) *TenantCache {
	c := &TenantCache{db: db, prefix: prefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get treats redis errors and undecodable values as misses.
func (c *TenantCache) Get(ctx context.Context, key string) (*tenant.Tenant, bool) {
	raw, err := c.db.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "tenant cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}

	var t tenant.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		c.logger.WarnContext(ctx, "dropping undecodable tenant cache entry", slog.String("key", key), slog.String("error", err.Error()))
		c.Delete(ctx, key)
		return nil, false
	}
	return &t, true
}

func (c *TenantCache) Set(ctx context.Context, key string, t *tenant.Tenant, ttl time.Duration) {
	if t == nil {
		return
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := c.db.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "tenant cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (c *TenantCache) Delete(ctx context.Context, key string) {
	if err := c.db.Del(ctx, c.key(key)).Err(); err != nil {
		c.logger.WarnContext(ctx, "tenant cache delete failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Close is a no-op: the client is shared.
func (c *TenantCache) Close() error { return nil }

func (c *TenantCache) key(k string) string {
	return join(c.prefix, "tenants", k)
}
