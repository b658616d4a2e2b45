package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

const (
	// defaultStreamMaxLen is the approximate XADD cap when none is configured.
	defaultStreamMaxLen = 10000

	// subscriberBuffer is the per-subscription channel depth.
	subscriberBuffer = 128

	// payloadField is the single field every stream entry carries.
	payloadField = "payload"
)

// SignalBus carries cycle reports, executed actions and alerts. Channels are
// fire-and-forget pub/sub; streams keep a bounded, replayable history.
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewSignalBus trims streams to about maxLen entries; zero picks the default.
func NewSignalBus(c *Client, maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &SignalBus{rdb: c.rdb, maxLen: int64(maxLen)}
}

func (b *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on channel, or on a glob pattern such as "crudebot:*".
// The returned channel closes when ctx is cancelled or the connection drops.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	subscribe := b.rdb.Subscribe
	if strings.ContainsAny(channel, "*?[") {
		subscribe = b.rdb.PSubscribe
	}
	sub := subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go relay(ctx, sub, out)
	return out, nil
}

// relay copies payloads from sub to out until ctx ends, then closes both.
func relay(ctx context.Context, sub *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer sub.Close()

	in := sub.Channel(redis.WithChannelSize(subscriberBuffer))
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}
		select {
		case out <- []byte(msg.Payload):
		case <-ctx.Done():
			return
		}
	}
}

// StreamAppend adds payload to stream, trimming old entries.
func (b *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: []any{payloadField, payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after afterID ("0" reads from the
// start) without blocking. Entries without a payload field are skipped.
func (b *SignalBus) StreamRead(ctx context.Context, stream, afterID string, count int) ([]domain.StreamMessage, error) {
	res, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, afterID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: xread %s: %w", stream, err)
	}

	var out []domain.StreamMessage
	for _, s := range res {
		for _, m := range s.Messages {
			if p, ok := streamPayload(m); ok {
				out = append(out, domain.StreamMessage{ID: m.ID, Payload: p})
			}
		}
	}
	return out, nil
}

func streamPayload(m redis.XMessage) ([]byte, bool) {
	switch v := m.Values[payloadField].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	}
	return nil, false
}

var _ domain.SignalBus = (*SignalBus)(nil)
