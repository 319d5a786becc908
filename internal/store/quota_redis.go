package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQuota meters usage against Redis instead of the relational store.
// The staleness check and the increment run inside Lua scripts, so the
// read-modify-write is a single atomic operation on the server and
// concurrent increments for one account cannot lose updates.
//
// Keys hold "count:lastResetUnix" pairs as a hash and expire two windows
// after last touch so abandoned accounts age out on their own.
type RedisQuota struct {
	client *redis.Client
}

// NewRedisQuota creates a Redis-backed quota counter from a redis URL.
func NewRedisQuota(url string) (*RedisQuota, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisQuota{client: client}, nil
}

// Close releases the underlying connection pool.
func (r *RedisQuota) Close() error {
	return r.client.Close()
}

func quotaKey(accountID string) string {
	return "quota:" + accountID
}

// checkScript resets a stale counter in place and returns count and
// last_reset. KEYS[1] = counter key, ARGV[1] = window start (unix),
// ARGV[2] = TTL seconds.
var checkScript = redis.NewScript(`
local last = tonumber(redis.call('HGET', KEYS[1], 'last_reset') or '0')
local start = tonumber(ARGV[1])
if last < start then
  redis.call('HSET', KEYS[1], 'count', 0, 'last_reset', start)
  last = start
end
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
return {count, last}
`)

// incrScript applies the staleness check then increments, returning the
// new count. Same key/arg layout as checkScript.
var incrScript = redis.NewScript(`
local last = tonumber(redis.call('HGET', KEYS[1], 'last_reset') or '0')
local start = tonumber(ARGV[1])
if last < start then
  redis.call('HSET', KEYS[1], 'count', 0, 'last_reset', start)
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return count
`)

const quotaKeyTTL = 48 * time.Hour

// CheckAndMaybeReset reads the counter for the current window, persisting
// the reset when the stored window is stale.
func (r *RedisQuota) CheckAndMaybeReset(ctx context.Context, accountID string, windowStart time.Time) (int64, time.Time, error) {
	res, err := checkScript.Run(ctx, r.client, []string{quotaKey(accountID)},
		windowStart.Unix(), int(quotaKeyTTL.Seconds())).Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis quota check: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis quota check: unexpected reply %v", res)
	}

	count, _ := res[0].(int64)
	lastUnix, _ := res[1].(int64)
	return count, time.Unix(lastUnix, 0).UTC(), nil
}

// Increment atomically applies the staleness check and adds one.
func (r *RedisQuota) Increment(ctx context.Context, accountID string, windowStart time.Time) (int64, error) {
	count, err := incrScript.Run(ctx, r.client, []string{quotaKey(accountID)},
		windowStart.Unix(), int(quotaKeyTTL.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis quota increment: %w", err)
	}
	return count, nil
}
