package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisSubmissionWindowScript atomically increments a fixed-size counter
// keyed by decision window and reports whether the caller is still under
// the configured ceiling. A plain fixed-window counter, not a token bucket: the
// orchestrator only ever needs "are we over the submissions-per-window
// ceiling across processes", never a refill rate.
var redisSubmissionWindowScript = redis.NewScript(`
local key = KEYS[1]
local ceiling = tonumber(ARGV[1])
local ttl_seconds = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
	redis.call("EXPIRE", key, ttl_seconds)
end

if count > ceiling then
	return {0, count}
end
return {1, count}
`)

// RedisRateWindow is the optional distributed coordination backend for
// ExplorationOrchestrator when more than one process shares a submission
// budget.
type RedisRateWindow struct {
	client    *redis.Client
	windowTTL time.Duration
	keyPrefix string
}

// NewRedisRateWindow wires a window backed by addr/db. Password may be
// empty for unauthenticated deployments.
func NewRedisRateWindow(addr, password string, db int) *RedisRateWindow {
	return &RedisRateWindow{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		windowTTL: time.Hour,
		keyPrefix: "corehunt:submissions:",
	}
}

// WithWindowTTL overrides how long a window's counter lives before it
// self-expires in Redis.
func (w *RedisRateWindow) WithWindowTTL(ttl time.Duration) *RedisRateWindow {
	w.windowTTL = ttl
	return w
}

// AllowSubmission atomically increments the shared counter for windowKey
// (typically a decision or target id) and reports whether the caller is
// still within ceiling submissions for that window, across every process
// sharing this Redis instance.
func (w *RedisRateWindow) AllowSubmission(ctx context.Context, windowKey string, ceiling int) (bool, error) {
	res, err := redisSubmissionWindowScript.Run(ctx, w.client,
		[]string{w.keyPrefix + windowKey}, ceiling, int(w.windowTTL.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("orchestrator: redis rate window: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("orchestrator: redis rate window: unexpected script response")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// Close releases the underlying Redis client.
func (w *RedisRateWindow) Close() error {
	return w.client.Close()
}
