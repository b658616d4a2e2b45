package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// funcStrategy adapts a closure to Strategy.
type funcStrategy struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcStrategy) Name() string                       { return f.name }
func (f funcStrategy) Evaluate(ctx context.Context) error { return f.fn(ctx) }

type stubLocks struct {
	err      error
	acquired int
	released int
}

func (l *stubLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() { l.released++ }, nil
}

type stubBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (b *stubBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = make(map[string][][]byte)
	}
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *stubBus) StreamAppend(context.Context, string, []byte) error      { return nil }
func (b *stubBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func newTestEngine(cfg EngineConfig, strategies ...Strategy) *Engine {
	reg := NewRegistry()
	for _, s := range strategies {
		reg.Register(s)
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	return NewEngine(reg, cfg, discardLogger())
}

func TestRunCycleOrderAndIsolation(t *testing.T) {
	var order []string
	step := func(name string, err error) Strategy {
		return funcStrategy{name: name, fn: func(ctx context.Context) error {
			if domain.CycleID(ctx) == "" {
				t.Errorf("%s: no cycle id on context", name)
			}
			order = append(order, name)
			return err
		}}
	}
	panicky := funcStrategy{name: "refinery", fn: func(context.Context) error {
		order = append(order, "refinery")
		panic("boom")
	}}
	alerts := &recordingAlerter{}
	e := newTestEngine(EngineConfig{Alerts: alerts},
		step("news", nil),
		step("transport", errors.New("exchange down")),
		panicky,
		step("spot_futures", nil),
	)

	report := e.RunCycle(context.Background())

	want := []string{"news", "transport", "refinery", "spot_futures"}
	if !equalCalls(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if len(report.Outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(report.Outcomes))
	}
	if report.Outcomes[1].Error != "exchange down" {
		t.Errorf("transport outcome = %+v", report.Outcomes[1])
	}
	if !strings.Contains(report.Outcomes[2].Error, "panicked: boom") {
		t.Errorf("refinery outcome = %+v", report.Outcomes[2])
	}
	if ev := alerts.events(); len(ev) != 2 || ev[0] != "strategy_error" {
		t.Errorf("alerts = %v, want two strategy_error", ev)
	}

	snap := e.Snapshot()
	if snap.Cycles != 1 || snap.LastCycle == nil || snap.LastCycle.ID != report.ID {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Strategies) != 4 || snap.Strategies[1].Failures != 1 || snap.Strategies[0].Failures != 0 {
		t.Fatalf("strategy stats = %+v", snap.Strategies)
	}
}

func TestRunCycleStopsBetweenStrategiesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran []string
	first := funcStrategy{name: "news", fn: func(sctx context.Context) error {
		ran = append(ran, "news")
		cancel()
		if sctx.Err() != nil {
			t.Error("running strategy saw cancellation")
		}
		return nil
	}}
	second := funcStrategy{name: "transport", fn: func(context.Context) error {
		ran = append(ran, "transport")
		return nil
	}}
	e := newTestEngine(EngineConfig{}, first, second)

	report := e.RunCycle(ctx)
	if !report.Cancelled {
		t.Fatal("report not marked cancelled")
	}
	if !equalCalls(ran, []string{"news"}) {
		t.Fatalf("ran = %v, want only news", ran)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	ran := false
	s := funcStrategy{name: "news", fn: func(context.Context) error { ran = true; return nil }}

	held := &stubLocks{err: domain.ErrLockHeld}
	report := newTestEngine(EngineConfig{Locks: held}, s).RunCycle(context.Background())
	if !report.Skipped || ran {
		t.Fatalf("cycle ran while lock held: %+v", report)
	}

	broken := &stubLocks{err: errors.New("redis: connection refused")}
	report = newTestEngine(EngineConfig{Locks: broken}, s).RunCycle(context.Background())
	if report.Skipped || !ran {
		t.Fatalf("lock outage should run unlocked: %+v", report)
	}

	ok := &stubLocks{}
	newTestEngine(EngineConfig{Locks: ok}, s).RunCycle(context.Background())
	if ok.acquired != 1 || ok.released != 1 {
		t.Fatalf("lock acquired %d released %d", ok.acquired, ok.released)
	}
}

func TestRunCyclePublishesReport(t *testing.T) {
	bus := &stubBus{}
	s := funcStrategy{name: "news", fn: func(context.Context) error { return nil }}
	report := newTestEngine(EngineConfig{Bus: bus}, s).RunCycle(context.Background())

	msgs := bus.messages[domain.ChannelCycles]
	if len(msgs) != 1 {
		t.Fatalf("published %d cycle reports, want 1", len(msgs))
	}
	var got domain.CycleReport
	if err := json.Unmarshal(msgs[0], &got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.ID != report.ID || len(got.Outcomes) != 1 {
		t.Fatalf("published report = %+v", got)
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	runs := 0
	s := funcStrategy{name: "news", fn: func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		runs++
		if runs == 3 {
			cancel()
		}
		return nil
	}}
	e := newTestEngine(EngineConfig{Interval: time.Millisecond}, s)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	mu.Lock()
	defer mu.Unlock()
	if runs != 3 {
		t.Fatalf("runs = %d, want 3", runs)
	}
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context) error { return nil }
	reg.Register(funcStrategy{name: "b", fn: noop})
	reg.Register(funcStrategy{name: "a", fn: noop})
	reg.Register(funcStrategy{name: "b", fn: noop})

	if got := reg.List(); !equalCalls(got, []string{"b", "a"}) {
		t.Fatalf("List = %v", got)
	}
}

func TestRunPausesAfterSlowCycle(t *testing.T) {
	const (
		interval = 100 * time.Millisecond
		work     = 150 * time.Millisecond
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		starts []time.Time
		ends   []time.Time
	)
	s := funcStrategy{name: "transport", fn: func(context.Context) error {
		mu.Lock()
		starts = append(starts, time.Now())
		n := len(starts)
		mu.Unlock()

		time.Sleep(work)

		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		if n == 3 {
			cancel()
		}
		return nil
	}}
	e := newTestEngine(EngineConfig{Interval: interval}, s)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 3 {
		t.Fatalf("cycles = %d, want 3", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(ends[i-1]); gap < interval {
			t.Errorf("gap before cycle %d = %v, want at least %v", i+1, gap, interval)
		}
	}
}
