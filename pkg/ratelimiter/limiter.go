package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Store keeps bucket state. Implementations must apply refill and
// consumption atomically per key.
type Store interface {
	// ConsumeTokens refills the bucket for elapsed time and takes tokens when
	// enough are available. A negative remaining means the request was denied
	// and nothing was taken. tokens == 0 only reports the state.
	ConsumeTokens(ctx context.Context, key string, tokens int, limit Limit) (remaining int, resetAt time.Time, err error)

	// Reset forgets the bucket.
	Reset(ctx context.Context, key string) error
}

// Limit describes one token bucket.
type Limit struct {
	Capacity       int           // burst size
	RefillRate     int           // tokens added per interval
	RefillInterval time.Duration
}

func (l Limit) validate() error {
	switch {
	case l.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, l.Capacity)
	case l.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, l.RefillRate)
	case l.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, l.RefillInterval)
	}
	return nil
}

// Config is loaded from RATE_LIMIT_* variables. Overrides maps a tenant slug
// to its own capacity, e.g. RATE_LIMIT_TENANT_OVERRIDES=acme:1000,trial:20.
// The refill rate of an override scales with its capacity.
type Config struct {
	Enabled        bool           `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Capacity       int            `env:"RATE_LIMIT_CAPACITY" envDefault:"100"`
	RefillRate     int            `env:"RATE_LIMIT_REFILL_RATE" envDefault:"10"`
	RefillInterval time.Duration  `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
	Overrides      map[string]int `env:"RATE_LIMIT_TENANT_OVERRIDES"`
}

// Result is the outcome of one check.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allowed reports whether the tokens were granted.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is zero for allowed results.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}

// Limiter applies a default bucket per key and optional per-tenant buckets.
type Limiter struct {
	store     Store
	def       Limit
	overrides map[string]Limit
}

// New validates cfg and builds a limiter on store.
func New(store Store, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	def := Limit{Capacity: cfg.Capacity, RefillRate: cfg.RefillRate, RefillInterval: cfg.RefillInterval}
	if err := def.validate(); err != nil {
		return nil, err
	}

	l := &Limiter{store: store, def: def, overrides: make(map[string]Limit, len(cfg.Overrides))}
	for slug, capacity := range cfg.Overrides {
		o := Limit{
			Capacity:       capacity,
			RefillRate:     max(1, def.RefillRate*capacity/def.Capacity),
			RefillInterval: def.RefillInterval,
		}
		if err := o.validate(); err != nil {
			return nil, fmt.Errorf("override %q: %w", slug, err)
		}
		l.overrides[slug] = o
	}
	return l, nil
}

// LimitFor returns the bucket used for a tenant slug.
func (l *Limiter) LimitFor(slug string) Limit {
	if o, ok := l.overrides[slug]; ok {
		return o
	}
	return l.def
}

// Allow takes one token from the bucket at key, sized for slug.
func (l *Limiter) Allow(ctx context.Context, key, slug string) (*Result, error) {
	return l.AllowN(ctx, key, slug, 1)
}

func (l *Limiter) AllowN(ctx context.Context, key, slug string, n int) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTokenCount, n)
	}
	return l.consume(ctx, key, slug, n)
}

// Status reports the bucket without taking tokens.
func (l *Limiter) Status(ctx context.Context, key, slug string) (*Result, error) {
	return l.consume(ctx, key, slug, 0)
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

func (l *Limiter) consume(ctx context.Context, key, slug string, n int) (*Result, error) {
	limit := l.LimitFor(slug)
	remaining, resetAt, err := l.store.ConsumeTokens(ctx, key, n, limit)
	if err != nil {
		return nil, err
	}
	return &Result{Limit: limit.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}
