package domain

import (
	"context"
	"time"
)

// RateLimiter throttles calls sharing a bucket name across every bot process.
type RateLimiter interface {
	// Allow takes a slot if one is free and never blocks.
	Allow(ctx context.Context, bucket string) (bool, error)
	// Wait blocks until a slot is free or ctx ends.
	Wait(ctx context.Context, bucket string) error
}

// LockManager hands out named leases so only one process runs a trading
// cycle at a time.
type LockManager interface {
	// Acquire returns ErrLockHeld when another holder owns name.
	Acquire(ctx context.Context, name string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one durable entry of an action stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries live actions, cycles and alerts between processes, plus a
// capped durable log of actions for late readers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe accepts a trailing "*" to match every channel with that prefix.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	// StreamRead returns up to count entries after afterID ("0" for the start).
	StreamRead(ctx context.Context, stream, afterID string, count int) ([]StreamMessage, error)
}

// Bus channels and the action stream.
const (
	ChannelActions = "crudebot:actions"
	ChannelCycles  = "crudebot:cycles"
	ChannelAlerts  = "crudebot:alerts"
	StreamActions  = "crudebot:actions:log"
)
