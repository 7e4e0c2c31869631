// Package redis provides a Redis-backed UsageLedger for imgguard.
//
// Each bucket is a plain integer key. Both buckets of an increment are
// bumped by one Lua script, so concurrent increments from many instances
// never lose updates.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/imgguard"
)

// Store is a Redis-backed UsageLedger.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	dayTTL    time.Duration
}

var _ imgguard.UsageLedger = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "imgguard:usage:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithDayTTL sets how long daily buckets are kept (default 48h, 0 keeps them
// forever). Monthly buckets never expire.
func WithDayTTL(d time.Duration) Option {
	return func(s *Store) { s.dayTTL = d }
}

// New creates a new Redis-backed UsageLedger.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "imgguard:usage:",
		dayTTL:    48 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(provider string, period imgguard.Period, periodKey string) string {
	return s.keyPrefix + "{" + provider + "}:" + string(period) + ":" + periodKey
}

// incrementScript bumps both buckets atomically.
// KEYS[1] = day key
// KEYS[2] = month key
// ARGV[1] = day ttl (seconds, 0 = none)
var incrementScript = goredis.NewScript(`
redis.call("INCR", KEYS[1])
redis.call("INCR", KEYS[2])
local ttl = tonumber(ARGV[1])
if ttl > 0 and redis.call("TTL", KEYS[1]) == -1 then
    redis.call("EXPIRE", KEYS[1], ttl)
end
return 1
`)

// resetScript zeroes a bucket only if it exists.
// KEYS[1] = month key
//
// Returns 1 on reset, 0 if the bucket does not exist.
var resetScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return 0
end
redis.call("SET", KEYS[1], "0")
return 1
`)

// Increment adds one to the daily and monthly buckets of at.
func (s *Store) Increment(ctx context.Context, provider string, at time.Time) error {
	_, err := incrementScript.Run(ctx, s.client,
		[]string{
			s.key(provider, imgguard.PeriodDay, imgguard.DayKey(at)),
			s.key(provider, imgguard.PeriodMonth, imgguard.MonthKey(at)),
		},
		int64(s.dayTTL/time.Second),
	).Result()
	if err != nil {
		return fmt.Errorf("imgguard/redis: increment: %w", err)
	}
	return nil
}

// Count returns the current count of a bucket, or 0.
func (s *Store) Count(ctx context.Context, provider string, period imgguard.Period, key string) (int64, error) {
	n, err := s.client.Get(ctx, s.key(provider, period, key)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("imgguard/redis: count: %w", err)
	}
	return n, nil
}

// Reset zeroes the monthly bucket.
func (s *Store) Reset(ctx context.Context, provider, monthKey string) error {
	res, err := resetScript.Run(ctx, s.client,
		[]string{s.key(provider, imgguard.PeriodMonth, monthKey)},
	).Int64()
	if err != nil {
		return fmt.Errorf("imgguard/redis: reset: %w", err)
	}
	if res == 0 {
		return imgguard.ErrUsageNotFound
	}
	return nil
}
