package redis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

//go:embed scripts/release_lock.lua
var releaseLockLua string

// releaseTimeout bounds the release call made from an unlock func.
const releaseTimeout = 2 * time.Second

// LockManager hands out TTL-bound locks so two bot processes never trade the
// same account in the same cycle.
type LockManager struct {
	c       *Client
	release *redis.Script
}

func NewLockManager(c *Client) *LockManager {
	return &LockManager{c: c, release: redis.NewScript(releaseLockLua)}
}

// Acquire takes the lock named name for at most ttl. It returns
// domain.ErrLockHeld when another holder has it. The returned unlock func is
// idempotent and only releases the lock this call took.
func (lm *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := lm.c.key("lock", name)
	token := uuid.NewString()

	err := lm.c.rdb.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, domain.ErrLockHeld
	case err != nil:
		return nil, fmt.Errorf("redis: lock %s: %w", name, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			_ = lm.release.Run(rctx, lm.c.rdb, []string{key}, token).Err()
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
