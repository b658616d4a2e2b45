package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// maxWaitStep caps a single sleep in Wait so a stale retry hint is re-checked.
const maxWaitStep = 250 * time.Millisecond

// RateLimiter is a sliding-window limiter shared by every bot process that
// points at the same Redis. The exchange client waits on the "exchange"
// bucket; the API middleware checks one bucket per client IP.
type RateLimiter struct {
	c      *Client
	script *redis.Script
	limit  int
	window time.Duration
}

// NewRateLimiter admits limit requests per window for each bucket.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		c:      c,
		script: redis.NewScript(slidingWindowLua),
		limit:  max(limit, 1),
		window: max(window, time.Millisecond),
	}
}

// Allow counts one request against bucket and reports whether it fits.
func (rl *RateLimiter) Allow(ctx context.Context, bucket string) (bool, error) {
	ok, _, err := rl.take(ctx, bucket)
	return ok, err
}

// Wait blocks until bucket admits a request, sleeping for the window's own
// retry hint between attempts.
func (rl *RateLimiter) Wait(ctx context.Context, bucket string) error {
	for {
		ok, retry, err := rl.take(ctx, bucket)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(min(retry, maxWaitStep))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: wait for %s: %w", bucket, ctx.Err())
		case <-timer.C:
		}
	}
}

func (rl *RateLimiter) take(ctx context.Context, bucket string) (bool, time.Duration, error) {
	res, err := rl.script.Run(ctx, rl.c.rdb,
		[]string{rl.c.key("ratelimit", bucket)},
		time.Now().UnixMicro(),
		rl.window.Microseconds(),
		rl.limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", bucket, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis: rate limit %s: malformed reply %v", bucket, res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Microsecond, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
