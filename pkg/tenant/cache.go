package tenant

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache is the interface for tenant caching implementations.
type Cache interface {
	// Get retrieves a tenant from cache by key.
	Get(ctx context.Context, key string) (*Tenant, bool)

	// Set stores a tenant in cache with the given TTL.
	Set(ctx context.Context, key string, tenant *Tenant, ttl time.Duration)

	// Delete removes a tenant from cache.
	Delete(ctx context.Context, key string)

	// Close releases any resources held by the cache.
	Close() error
}

// DefaultCacheSize is the default maximum number of items in the cache.
const DefaultCacheSize = 1000

// DefaultCacheTTL is used by CachedRegistry when no TTL is given.
const DefaultCacheTTL = 5 * time.Minute

type cacheItem struct {
	key       string
	tenant    *Tenant
	expiresAt time.Time
}

// inMemoryCache is an LRU cache with TTL expiry and a background sweeper.
type inMemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
	stop    chan struct{}
	done    chan struct{}
	closed  bool
}

// NewInMemoryCache creates a new in-memory cache with automatic cleanup.
func NewInMemoryCache() Cache {
	return NewInMemoryCacheWithSize(DefaultCacheSize)
}

// NewInMemoryCacheWithSize creates a new in-memory cache with specified size limit.
func NewInMemoryCacheWithSize(maxSize int) Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}

	c := &inMemoryCache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *inMemoryCache) Get(_ context.Context, key string) (*Tenant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	item := el.Value.(*cacheItem)
	if time.Now().After(item.expiresAt) {
		c.removeElement(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return item.tenant, true
}

func (c *inMemoryCache) Set(_ context.Context, key string, t *Tenant, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(ttl)
	if el, ok := c.items[key]; ok {
		item := el.Value.(*cacheItem)
		item.tenant = t
		item.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&cacheItem{key: key, tenant: t, expiresAt: expiresAt})
}

func (c *inMemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

func (c *inMemoryCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*cacheItem).key)
}

func (c *inMemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *inMemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*cacheItem).expiresAt) {
			c.removeElement(el)
		}
		el = prev
	}
}

// Close stops the cleanup goroutine and waits for it to finish.
func (c *inMemoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return nil
}

// noOpCache is a cache that doesn't cache anything.
type noOpCache struct{}

// NewNoOpCache creates a cache that doesn't cache.
func NewNoOpCache() Cache { return noOpCache{} }

func (noOpCache) Get(context.Context, string) (*Tenant, bool) { return nil, false }

func (noOpCache) Set(context.Context, string, *Tenant, time.Duration) {}

func (noOpCache) Delete(context.Context, string) {}

func (noOpCache) Close() error { return nil }

// CachedRegistry decorates a Registry with a Cache for slug and ID lookups.
// Misses are not cached, so a newly provisioned tenant is visible immediately.
type CachedRegistry struct {
	next  Registry
	cache Cache
	ttl   time.Duration
}

// NewCachedRegistry wraps next. Non-positive ttl means DefaultCacheTTL.
func NewCachedRegistry(next Registry, cache Cache, ttl time.Duration) *CachedRegistry {
	if cache == nil {
		cache = NewNoOpCache()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRegistry{next: next, cache: cache, ttl: ttl}
}

func (r *CachedRegistry) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	t, err := r.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

func (r *CachedRegistry) FindBySlug(ctx context.Context, slug string) (*Tenant, error) {
	key := "slug:" + slug
	if t, ok := r.cache.Get(ctx, key); ok {
		return t, nil
	}
	t, err := r.next.FindBySlug(ctx, slug)
	if err != nil || t == nil {
		return nil, err
	}
	r.store(ctx, t)
	return t, nil
}

func (r *CachedRegistry) FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	key := "id:" + id.String()
	if t, ok := r.cache.Get(ctx, key); ok {
		return t, nil
	}
	t, err := r.next.FindByID(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	r.store(ctx, t)
	return t, nil
}

// GetAll is never cached.
func (r *CachedRegistry) GetAll(ctx context.Context) ([]*Tenant, error) {
	return r.next.GetAll(ctx)
}

// Invalidate drops cached entries for t, e.g. after it was renamed or deactivated.
func (r *CachedRegistry) Invalidate(ctx context.Context, t *Tenant) {
	if t == nil {
		return
	}
	r.cache.Delete(ctx, "slug:"+t.Slug)
	r.cache.Delete(ctx, "id:"+t.ID.String())
}

func (r *CachedRegistry) store(ctx context.Context, t *Tenant) {
	r.cache.Set(ctx, "slug:"+t.Slug, t, r.ttl)
	r.cache.Set(ctx, "id:"+t.ID.String(), t, r.ttl)
}
