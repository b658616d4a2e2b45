package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// ActionPublisher fans every executed action out on the signal bus: live on
// the actions channel and durably on the actions stream.
type ActionPublisher struct {
	bus domain.SignalBus
}

// NewActionPublisher creates an ActionPublisher over bus.
func NewActionPublisher(bus domain.SignalBus) *ActionPublisher {
	return &ActionPublisher{bus: bus}
}

// Record implements executor.Recorder.
func (p *ActionPublisher) Record(ctx context.Context, action domain.Action) error {
	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("redis: marshal action %s: %w", action.ID, err)
	}
	return errors.Join(
		p.bus.Publish(ctx, domain.ChannelActions, payload),
		p.bus.StreamAppend(ctx, domain.StreamActions, payload),
	)
}

