/**
 * @description
 * This file implements a Redis-backed fixed-window rate limiter used to bound
 * challenge generation per user. The counter increment and expiry are one Lua
 * script, so concurrent requests against the same key cannot race the TTL.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and Lua script execution.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript increments the window counter and sets its expiry on first
// hit. KEYS[1] = counter key, ARGV[1] = window millis. Returns {count, ttl_ms}.
var rateLimitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisRateLimiter implements RateLimiter on a shared Redis instance so the
// limit holds across service replicas.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisRateLimiter creates a limiter with the given key prefix.
func NewRedisRateLimiter(client *redis.Client, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// ConsumeRateLimit counts one action for the subject in the current window and
// returns the running count plus the seconds until the window resets.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)

	res, err := rateLimitScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script failed: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result: %v", res)
	}
	count, _ := values[0].(int64)
	ttlMillis, _ := values[1].(int64)

	retryAfter := int((ttlMillis + 999) / 1000)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return int(count), retryAfter, nil
}
