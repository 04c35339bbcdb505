// Package redisstore implements the entitlement usage store on Redis.
// Counters live under one key per (user, feature, day) triple; the
// limit-guarded increment runs as a Lua script, so concurrent callers cannot
// overrun the limit.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/advomarket/entitlement/pkg/entitlement"
)

// incrBelowScript increments the counter only while it is below the limit.
// Returns {count, applied}.
var incrBelowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
	return {current, 0}
end
current = redis.call('INCR', KEYS[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 and current == 1 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return {current, 1}
`)

// Store implements entitlement.ConditionalUsageStore.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKeyPrefix overrides the default "entitlement:usage" key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	if prefix == "" {
		panic("WithKeyPrefix: prefix cannot be empty")
	}
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithTTL makes counters expire after d. By default records are retained
// indefinitely, matching the durable stores; set a TTL only when Redis is the
// sole usage backend and old days may be dropped.
func WithTTL(d time.Duration) StoreOption {
	if d <= 0 {
		panic("WithTTL: duration must be > 0")
	}
	return func(s *Store) { s.ttl = d }
}

// New creates a Store. Panics on a nil client to fail fast during wiring.
func New(client redis.UniversalClient, opts ...StoreOption) *Store {
	if client == nil {
		panic("redisstore: redis client is required")
	}
	s := &Store{
		client:    client,
		keyPrefix: "entitlement:usage",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.keyPrefix, userID, feature, day)
}

func (s *Store) GetUsage(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day) (int64, error) {
	val, err := s.client.Get(ctx, s.key(userID, feature, day)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, entitlement.ErrUsageNotFound
		}
		return 0, err
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt usage counter %q: %w", val, err)
	}
	return count, nil
}

func (s *Store) UpsertUsage(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day, count int64) error {
	return s.client.Set(ctx, s.key(userID, feature, day), count, s.ttl).Err()
}

func (s *Store) IncrementUsageBelow(ctx context.Context, userID uuid.UUID, feature entitlement.FeatureKey, day entitlement.Day, limit int64) (int64, bool, error) {
	res, err := incrBelowScript.Run(ctx, s.client,
		[]string{s.key(userID, feature, day)},
		limit, s.ttl.Milliseconds()).Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected script result %v", res)
	}

	count, ok := res[0].(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected script count %T", res[0])
	}
	applied, ok := res[1].(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected script flag %T", res[1])
	}
	return count, applied == 1, nil
}
