package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quote(ticker, bid, ask string) domain.Security {
	return domain.Security{
		Ticker: ticker,
		Bid:    decimal.RequireFromString(bid),
		Ask:    decimal.RequireFromString(ask),
	}
}

// fakeMarket serves fixed snapshots. leaseSeq, when set, is consumed one
// entry per Leases call; the last entry repeats.
type fakeMarket struct {
	secs       []domain.Security
	news       []domain.NewsItem
	leaseSeq   [][]domain.Lease
	err        error
	leaseCalls int
}

func (m *fakeMarket) Securities(context.Context) ([]domain.Security, error) {
	return m.secs, m.err
}

func (m *fakeMarket) News(context.Context) ([]domain.NewsItem, error) {
	return m.news, m.err
}

func (m *fakeMarket) Leases(context.Context) ([]domain.Lease, error) {
	m.leaseCalls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.leaseSeq) == 0 {
		return nil, nil
	}
	i := m.leaseCalls - 1
	if i >= len(m.leaseSeq) {
		i = len(m.leaseSeq) - 1
	}
	return m.leaseSeq[i], nil
}

// recordingActions records every submission as a short string such as
// "BUY CL 30", "lease CL-STORAGE", "process 4 CL 10" or "read 7".
type recordingActions struct {
	mu      sync.Mutex
	calls   []string
	leaseID map[string]int64 // echoed lease ids by ticker
	failOn  map[string]bool  // calls that return an error
}

var errSubmit = errors.New("submit failed")

func (a *recordingActions) add(call string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	if a.failOn[call] {
		return fmt.Errorf("%s: %w", call, errSubmit)
	}
	return nil
}

func (a *recordingActions) PlaceOrder(_ context.Context, _ string, o domain.Order) error {
	return a.add(fmt.Sprintf("%s %s %d", o.Action, o.Ticker, o.Quantity))
}

func (a *recordingActions) LeaseAsset(_ context.Context, _ string, ticker string, units int) ([]domain.Lease, error) {
	var leases []domain.Lease
	for i := 0; i < units; i++ {
		if err := a.add("lease " + ticker); err != nil {
			return leases, err
		}
		leases = append(leases, domain.Lease{ID: a.leaseID[ticker], Ticker: ticker})
	}
	return leases, nil
}

func (a *recordingActions) ProcessLease(_ context.Context, _ string, req domain.ProcessRequest) error {
	return a.add(fmt.Sprintf("process %d %s %d", req.LeaseID, req.From, req.Quantity))
}

func (a *recordingActions) MarkNewsRead(_ context.Context, _ string, id int64) error {
	return a.add(fmt.Sprintf("read %d", id))
}

func (a *recordingActions) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (r *recordingAlerter) Alert(_ context.Context, a domain.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingAlerter) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a.Event)
	}
	return out
}

func newDeps(m *fakeMarket, a *recordingActions) Deps {
	return Deps{Market: m, Actions: a, Logger: discardLogger()}
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
