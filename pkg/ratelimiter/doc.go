// Package ratelimiter implements token bucket rate limiting keyed by tenant.
//
// Each tenant shares one bucket across all of its users, so a noisy tenant
// cannot starve the others; requests without a tenant are limited per client
// IP. Config.Overrides gives individual tenants a larger or smaller bucket:
//
//	limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), cfg)
//	if err != nil {
//		return err
//	}
//	r.Use(tenant.Middleware(resolver))
//	r.Use(ratelimiter.Middleware(limiter, ratelimiter.ByTenant()))
//
// MemoryStore suits a single instance. redis.NewRateLimitStore shares the
// buckets between instances.
package ratelimiter
