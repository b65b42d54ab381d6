// Package ratelimiter implements a token bucket shared by every replica through Redis.
package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LLMBucket is the bucket key used for outbound text-generation calls.
const LLMBucket = "llm"

// Limiter decides whether a unit of work may proceed now.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// BucketConfig is a token bucket: Capacity tokens, refilled at RefillRate tokens per second.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// NewBucketConfigFromPerMinute converts a requests-per-minute budget into a bucket.
func NewBucketConfigFromPerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{
		Capacity:   int64(perMinute),
		RefillRate: float64(perMinute) / 60.0,
	}
}

// Enabled reports whether the bucket actually limits anything.
func (b BucketConfig) Enabled() bool {
	return b.Capacity > 0 && b.RefillRate > 0
}

// RedisLuaLimiter evaluates the bucket atomically in a Lua script. It fails open when
// Redis is unreachable so provider-side 429 handling remains the last line of defence.
type RedisLuaLimiter struct {
	redis   redis.Scripter
	buckets map[string]BucketConfig
	script  *redis.Script
	prefix  string
	mu      sync.RWMutex
}

// NewRedisLuaLimiter returns nil when rdb is nil; a nil limiter allows everything.
func NewRedisLuaLimiter(rdb redis.Scripter, buckets map[string]BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	if buckets == nil {
		buckets = map[string]BucketConfig{}
	}
	return &RedisLuaLimiter{
		redis:   rdb,
		buckets: buckets,
		script:  redis.NewScript(luaTokenBucketScript),
		prefix:  "interview:rate:",
	}
}

const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then
  tokens = tonumber(data[1])
end
if data[2] then
  last_refill = tonumber(data[2])
end

local delta = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after_ms = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
elseif refill_rate > 0 then
  retry_after_ms = math.ceil((cost - tokens) / refill_rate * 1000)
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, ttl)

return { allowed, retry_after_ms }
`

// Allow consumes cost tokens from the bucket registered under key.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	cfg, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok || !cfg.Enabled() {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(time.Now().UnixNano()) / 1e9
	// Idle buckets expire once they would have refilled completely.
	ttl := int64(math.Ceil(float64(cfg.Capacity)/cfg.RefillRate)) + 1

	res, err := l.script.Run(ctx, l.redis, []string{l.prefix + key}, cfg.Capacity, cfg.RefillRate, nowSec, cost, ttl).Int64Slice()
	if err != nil {
		slog.Error("redis rate limiter script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, fmt.Errorf("op=ratelimiter.Allow: %w", err)
	}
	if len(res) < 2 {
		slog.Error("redis rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}

// Wait blocks until the bucket admits cost tokens or ctx ends. Script errors fail open.
func (l *RedisLuaLimiter) Wait(ctx context.Context, key string, cost int64) error {
	for {
		allowed, retryAfter, err := l.Allow(ctx, key, cost)
		if err != nil || allowed {
			return nil
		}
		if retryAfter <= 0 {
			retryAfter = 100 * time.Millisecond
		}
		t := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// SetBucketConfig registers or replaces the bucket for key. Safe for concurrent use.
func (l *RedisLuaLimiter) SetBucketConfig(key string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[key] = cfg
}
