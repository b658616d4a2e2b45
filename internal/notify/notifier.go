// Package notify fans trading alerts out to chat webhooks and mirrors them
// onto the alerts channel for dashboards.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

const deliveryTimeout = 10 * time.Second

// Message is one rendered notification.
type Message struct {
	Title string
	Body  string
}

// Channel is a chat destination such as a Telegram chat or Discord webhook.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, m Message) error
}

// Config selects which alerts reach the channels.
type Config struct {
	// Events lists the alert events forwarded to channels. Empty forwards all.
	Events []string
	// QuietPeriod drops repeats of an identical alert. Zero disables.
	QuietPeriod time.Duration
	// Bus, when set, receives every alert regardless of Events.
	Bus domain.SignalBus
}

// Notifier implements strategy.Alerter.
type Notifier struct {
	channels []Channel
	events   map[string]bool
	quiet    time.Duration
	bus      domain.SignalBus
	logger   *slog.Logger

	mu     sync.Mutex
	recent map[string]time.Time
}

// New returns a Notifier delivering to channels.
func New(cfg Config, logger *slog.Logger, channels ...Channel) *Notifier {
	events := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		if e = strings.TrimSpace(e); e != "" {
			events[e] = true
		}
	}
	return &Notifier{
		channels: channels,
		events:   events,
		quiet:    cfg.QuietPeriod,
		bus:      cfg.Bus,
		logger:   logger.With(slog.String("component", "notifier")),
		recent:   make(map[string]time.Time),
	}
}

// Alert publishes a on the bus and delivers it to every channel when its
// event is routed. Failures are logged only.
func (n *Notifier) Alert(ctx context.Context, a domain.Alert) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	n.mirror(ctx, a)

	if len(n.events) > 0 && !n.events[a.Event] {
		n.logger.DebugContext(ctx, "alert not routed", slog.String("event", a.Event))
		return
	}
	body := formatFields(a.Fields)
	if n.repeat(a.Event + "\x00" + a.Title + "\x00" + body) {
		n.logger.DebugContext(ctx, "duplicate alert suppressed", slog.String("event", a.Event))
		return
	}
	_ = n.fanOut(ctx, Message{Title: a.Title, Body: body})
}

// Announce delivers a lifecycle notice to every channel, bypassing routing
// and duplicate suppression.
func (n *Notifier) Announce(ctx context.Context, title, body string) error {
	return n.fanOut(ctx, Message{Title: title, Body: body})
}

func (n *Notifier) mirror(ctx context.Context, a domain.Alert) {
	if n.bus == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := n.bus.Publish(ctx, domain.ChannelAlerts, payload); err != nil {
		n.logger.WarnContext(ctx, "publish alert failed", slog.String("error", err.Error()))
	}
}

// repeat records key and reports whether it was already seen within the
// quiet period.
func (n *Notifier) repeat(key string) bool {
	if n.quiet <= 0 {
		return false
	}
	now := time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	for k, at := range n.recent {
		if now.Sub(at) >= n.quiet {
			delete(n.recent, k)
		}
	}
	if _, ok := n.recent[key]; ok {
		return true
	}
	n.recent[key] = now
	return false
}

// fanOut tries every channel; one failing channel does not skip the rest.
func (n *Notifier) fanOut(ctx context.Context, m Message) error {
	var errs []error
	for _, ch := range n.channels {
		if err := ch.Deliver(ctx, m); err != nil {
			n.logger.ErrorContext(ctx, "notification failed",
				slog.String("channel", ch.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification delivered",
			slog.String("channel", ch.Name()),
			slog.String("title", m.Title),
		)
	}
	return errors.Join(errs...)
}

// formatFields renders alert fields as sorted "key: value" lines.
func formatFields(fields map[string]string) string {
	lines := make([]string, 0, len(fields))
	for k, v := range fields {
		lines = append(lines, k+": "+v)
	}
	slices.Sort(lines)
	return strings.Join(lines, "\n")
}
