package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// ScopedKey namespaces key with the slug of the tenant in ctx:
// "t:<slug>:<key>". Without a tenant it returns "global:<key>".
func ScopedKey(ctx context.Context, key string) string {
	if t, ok := tenant.FromContext(ctx); ok {
		return join("t", t.Slug, key)
	}
	return join("global", key)
}

// Scoped is a key-value store whose keys always belong to the tenant in the
// context. Operations without a tenant fail with ErrNoTenant.
type Scoped struct {
	db            redis.UniversalClient
	prefix        string
	scanBatchSize int64
}

// NewScoped creates the store. prefix is usually Config.KeyPrefix.
func NewScoped(db redis.UniversalClient, prefix string) *Scoped {
	return &Scoped{db: db, prefix: prefix, scanBatchSize: 1000}
}

// Get returns nil, nil for missing keys.
func (s *Scoped) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.key(ctx, key)
	if err != nil {
		return nil, err
	}
	val, err := s.db.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores val. Zero exp means no expiration.
func (s *Scoped) Set(ctx context.Context, key string, val []byte, exp time.Duration) error {
	k, err := s.key(ctx, key)
	if err != nil {
		return err
	}
	return s.db.Set(ctx, k, val, exp).Err()
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	k, err := s.key(ctx, key)
	if err != nil {
		return err
	}
	return s.db.Del(ctx, k).Err()
}

// Keys lists the current tenant's keys without their namespace, using SCAN.
func (s *Scoped) Keys(ctx context.Context) ([]string, error) {
	ns, err := s.namespace(ctx)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = s.scan(ctx, ns, func(batch []string) error {
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, ns))
		}
		return nil
	})
	return keys, err
}

// Reset deletes every key of the current tenant and nothing else.
func (s *Scoped) Reset(ctx context.Context) error {
	ns, err := s.namespace(ctx)
	if err != nil {
		return err
	}
	return s.scan(ctx, ns, func(batch []string) error {
		if len(batch) == 0 {
			return nil
		}
		return s.db.Del(ctx, batch...).Err()
	})
}

func (s *Scoped) scan(ctx context.Context, ns string, fn func([]string) error) error {
	var cursor uint64
	for {
		batch, next, err := s.db.Scan(ctx, cursor, ns+"*", s.scanBatchSize).Result()
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// namespace is "<prefix>:t:<slug>:". Without a tenant ScopedKey would fall
// back to the global namespace, so Scoped refuses instead.
func (s *Scoped) namespace(ctx context.Context) (string, error) {
	if _, ok := tenant.FromContext(ctx); !ok {
		return "", ErrNoTenant
	}
	return join(s.prefix, ScopedKey(ctx, "")) + ":", nil
}

func (s *Scoped) key(ctx context.Context, key string) (string, error) {
	ns, err := s.namespace(ctx)
	if err != nil {
		return "", err
	}
	return ns + key, nil
}

func join(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ":")
}
