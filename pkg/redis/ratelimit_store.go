package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tenancy/pkg/ratelimiter"
)

// tokenBucketScript refills and consumes atomically. Bucket state lives in a
// hash with the token count and the start of the current refill interval,
// both driven by the caller's clock in milliseconds.
var tokenBucketScript = redis.NewScript(`
local capacity  = tonumber(ARGV[1])
local rate      = tonumber(ARGV[2])
local interval  = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local now       = tonumber(ARGV[5])

local state    = redis.call('HMGET', KEYS[1], 'tokens', 'refilled_at')
local tokens   = tonumber(state[1])
local refilled = tonumber(state[2])
if tokens == nil or refilled == nil then
	tokens = capacity
	refilled = now
end

local intervals = math.floor((now - refilled) / interval)
if intervals > 0 then
	tokens = math.min(capacity, tokens + intervals * rate)
	refilled = refilled + intervals * interval
end
tokens = math.min(tokens, capacity)

local remaining = tokens - requested
if remaining >= 0 then
	tokens = remaining
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refilled_at', refilled)
redis.call('PEXPIRE', KEYS[1], (math.ceil(capacity / rate) + 1) * interval)
return {remaining, refilled + interval}
`)

// RateLimitStore is a ratelimiter.Store shared by every instance of the
// service. Buckets live under "<prefix>:ratelimit:<key>" and expire once they
// would be full again.
type RateLimitStore struct {
	db     redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ ratelimiter.Store = (*RateLimitStore)(nil)

// NewRateLimitStore creates a store on db. The client stays owned by the caller.
func NewRateLimitStore(db redis.UniversalClient, prefix string) *RateLimitStore {
	return &RateLimitStore{db: db, prefix: prefix, now: time.Now}
}

func (s *RateLimitStore) ConsumeTokens(ctx context.Context, key string, tokens int, limit ratelimiter.Limit) (int, time.Time, error) {
	res, err := tokenBucketScript.Run(ctx, s.db, []string{s.key(key)},
		limit.Capacity,
		limit.RefillRate,
		limit.RefillInterval.Milliseconds(),
		tokens,
		s.now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ratelimiter.ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, ratelimiter.ErrStoreUnavailable
	}
	return int(res[0]), time.UnixMilli(res[1]), nil
}

func (s *RateLimitStore) Reset(ctx context.Context, key string) error {
	if err := s.db.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Join(ratelimiter.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RateLimitStore) key(k string) string {
	return join(s.prefix, "ratelimit", k)
}
