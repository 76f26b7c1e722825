package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "autolist:ratelimit:"

// slidingWindow admits a request when fewer than limit requests were admitted
// in the last window. It returns {1} or {0, oldest_score_ms}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call("zremrangebyscore", key, "-inf", window_start)
	local current = redis.call("zcard", key)

	if current < limit then
		redis.call("zadd", key, now, now .. "-" .. math.random())
		redis.call("pexpire", key, window_ms)
		return {1}
	end

	local oldest = redis.call("zrange", key, 0, 0, "WITHSCORES")
	if #oldest > 0 then
		return {0, oldest[2]}
	end
	return {0, 0}
`)

// RateLimiterImpl shares a request budget for each source across processes.
type RateLimiterImpl struct {
	client *redis.Client
	limit  int
	window time.Duration
	// minWait bounds how often a blocked caller polls.
	minWait time.Duration
}

// NewRateLimiter creates a limiter admitting limit requests per window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiterImpl {
	return &RateLimiterImpl{
		client:  client,
		limit:   limit,
		window:  window,
		minWait: 10 * time.Millisecond,
	}
}

// Wait blocks until a request for key is admitted or ctx is done.
func (r *RateLimiterImpl) Wait(ctx context.Context, key string) error {
	if r.limit <= 0 || r.window <= 0 {
		return nil
	}
	for {
		allowed, retryIn, err := r.allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(max(retryIn, r.minWait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *RateLimiterImpl) allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()
	result, err := slidingWindow.Run(ctx, r.client, []string{rateLimitKeyPrefix + key},
		now.UnixMilli(),
		now.Add(-r.window).UnixMilli(),
		r.limit,
		r.window.Milliseconds(),
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}

	flag, err := toInt64(result[0])
	if err != nil {
		return false, 0, err
	}
	if flag == 1 {
		return true, 0, nil
	}

	var retryIn time.Duration
	if len(result) > 1 {
		oldestMs, err := toInt64(result[1])
		if err != nil {
			return false, 0, err
		}
		if oldestMs > 0 {
			retryIn = time.UnixMilli(oldestMs).Add(r.window).Sub(now)
		}
	}
	return false, retryIn, nil
}

// toInt64 handles Lua numbers, which arrive as integers or, from WITHSCORES, strings.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
			return parsed, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
