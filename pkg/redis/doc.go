// Package redis connects to Redis and provides the tenant-aware pieces built
// on it: a shared tenant.Cache for CachedRegistry, a shared rate limit store,
// and a key-value store whose keys are namespaced by the current tenant.
//
//	client, err := redis.Connect(ctx, cfg)
//	reg := tenant.NewCachedRegistry(store, redis.NewTenantCache(client, cfg.KeyPrefix), time.Minute)
//
//	kv := redis.NewScoped(client, cfg.KeyPrefix)
//	_ = kv.Set(ctx, "onboarding", []byte("done"), 0) // "tenancy:t:<slug>:onboarding"
//
// NewRateLimitStore keeps ratelimiter buckets in Redis so every instance
// enforces the same per-tenant limits.
//
// Scoped refuses to work without a tenant in the context. ScopedKey builds its
// keys and is also usable by code that talks to the client directly.
package redis
