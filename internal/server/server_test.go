package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/crudebot/internal/domain"
	"github.com/alanyoungcy/crudebot/internal/server/handler"
	"github.com/alanyoungcy/crudebot/internal/strategy"
)

type fakeEngine struct{}

func (fakeEngine) ListNames() []string { return []string{"news", "transport"} }

func (fakeEngine) Snapshot() strategy.Snapshot {
	return strategy.Snapshot{
		Cycles:     3,
		LastCycle:  &domain.CycleReport{ID: "c-3"},
		Strategies: []strategy.StrategyInfo{{Name: "news", Runs: 3}, {Name: "transport", Runs: 3, Failures: 1}},
	}
}

type fakeJournal struct {
	actions []domain.Action
	opts    domain.ListOpts
}

func (f *fakeJournal) List(_ context.Context, opts domain.ListOpts) ([]domain.Action, error) {
	f.opts = opts
	return f.actions, nil
}

func (f *fakeJournal) Get(_ context.Context, id string) (domain.Action, error) {
	for _, a := range f.actions {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Action{}, domain.ErrNotFound
}

type denyLimiter struct{ calls int }

func (d *denyLimiter) Allow(context.Context, string) (bool, error) {
	d.calls++
	return d.calls == 1, nil
}

func (d *denyLimiter) Wait(context.Context, string) error { return nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestHandler(t *testing.T, apiKey string, journal *fakeJournal, limiter domain.RateLimiter) http.Handler {
	t.Helper()
	hs := Handlers{
		Health: handler.NewHealthHandler(discard()),
		Status: handler.NewStatusHandler("dry_run", true, fakeEngine{}),
	}
	if journal != nil {
		hs.Actions = handler.NewActionHandler(journal, discard())
	}
	return buildHandler(Config{APIKey: apiKey}, hs, nil, limiter, discard())
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusReportsEngineSnapshot(t *testing.T) {
	h := newTestHandler(t, "", nil, nil)
	rec := get(t, h, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Mode          string                  `json:"mode"`
		DryRun        bool                    `json:"dry_run"`
		StrategyOrder []string                `json:"strategy_order"`
		Cycles        int64                   `json:"cycles"`
		LastCycle     domain.CycleReport      `json:"last_cycle"`
		Strategies    []strategy.StrategyInfo `json:"strategies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Mode != "dry_run" || !body.DryRun {
		t.Errorf("mode = %q dry_run = %v", body.Mode, body.DryRun)
	}
	if len(body.StrategyOrder) != 2 || body.StrategyOrder[0] != "news" {
		t.Errorf("strategy_order = %v", body.StrategyOrder)
	}
	if body.Cycles != 3 || body.LastCycle.ID != "c-3" {
		t.Errorf("cycles = %d last = %q", body.Cycles, body.LastCycle.ID)
	}
	if len(body.Strategies) != 2 || body.Strategies[1].Failures != 1 {
		t.Errorf("strategies = %+v", body.Strategies)
	}
}

func TestActionsRoutes(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	journal := &fakeJournal{actions: []domain.Action{
		{ID: "a1", Strategy: "refinery", Kind: domain.ActionOrder, Ticker: "CL", Quantity: 30, Side: domain.OrderSideBuy, At: at},
	}}
	h := newTestHandler(t, "", journal, nil)

	rec := get(t, h, "/api/actions?limit=900&offset=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list []domain.Action
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Ticker != "CL" {
		t.Fatalf("list = %+v", list)
	}
	if journal.opts.Limit != 500 || journal.opts.Offset != 2 {
		t.Fatalf("list opts = %+v, want limit capped at 500", journal.opts)
	}

	if rec := get(t, h, "/api/actions/a1", nil); rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if rec := get(t, h, "/api/actions/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing action status = %d, want 404", rec.Code)
	}
}

func TestActionsRouteAbsentWithoutJournal(t *testing.T) {
	h := newTestHandler(t, "", nil, nil)
	if rec := get(t, h, "/api/actions", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	h := newTestHandler(t, "s3cret", nil, nil)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"health is public", "/api/health", nil, http.StatusOK},
		{"missing token", "/api/status", nil, http.StatusUnauthorized},
		{"wrong token", "/api/status", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"api key header", "/api/status", map[string]string{"X-API-Key": "s3cret"}, http.StatusOK},
		{"bearer token", "/api/status", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(t, h, tt.path, tt.header); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	h := newTestHandler(t, "", nil, &denyLimiter{})

	if rec := get(t, h, "/api/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", rec.Code)
	}
	rec := get(t, h, "/api/health", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

func TestCORSPreflight(t *testing.T) {
	hs := Handlers{
		Health: handler.NewHealthHandler(discard()),
		Status: handler.NewStatusHandler("live", false, fakeEngine{}),
	}
	h := buildHandler(Config{APIKey: "k", CORSOrigins: []string{"https://ops.example"}}, hs, nil, nil, discard())

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://ops.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestHealthReportsDegradedDependency(t *testing.T) {
	health := handler.NewHealthHandler(discard()).
		WithCheck("redis", func(context.Context) error { return nil }).
		WithCheck("postgres", func(context.Context) error { return errors.New("connection refused") })
	h := buildHandler(Config{}, Handlers{Health: health, Status: handler.NewStatusHandler("trade", false, fakeEngine{})}, nil, nil, discard())

	rec := get(t, h, "/api/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Dependencies["redis"] != "ok" || body.Dependencies["postgres"] != "connection refused" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

type fakeStream struct {
	after string
	count int
	msgs  []domain.StreamMessage
}

func (f *fakeStream) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	f.after, f.count = lastID, count
	return f.msgs, nil
}

func TestLiveActionsSkipsUndecodableEntries(t *testing.T) {
	stream := &fakeStream{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"id":"a1","strategy":"news","kind":"news_read","news_id":7}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
	}}
	hs := Handlers{
		Health:      handler.NewHealthHandler(discard()),
		Status:      handler.NewStatusHandler("trade", false, fakeEngine{}),
		LiveActions: handler.NewLiveActionHandler(stream, discard()),
	}
	h := buildHandler(Config{}, hs, nil, nil, discard())

	rec := get(t, h, "/api/actions/live?after=0-5&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []struct {
		StreamID string        `json:"stream_id"`
		Action   domain.Action `json:"action"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].StreamID != "1-0" || out[0].Action.NewsID != 7 {
		t.Fatalf("unexpected entries: %+v", out)
	}
	if stream.after != "0-5" || stream.count != 10 {
		t.Fatalf("read after %q count %d", stream.after, stream.count)
	}
}

func TestActionsWindowQuery(t *testing.T) {
	journal := &fakeJournal{}
	h := newTestHandler(t, "", journal, nil)

	rec := get(t, h, "/api/actions?since=2026-03-01T12:00:00Z&until=2026-03-01T13:00:00Z&order=asc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "[]\n" {
		t.Fatalf("empty journal body = %q, want []", rec.Body.String())
	}
	opts := journal.opts
	if opts.Since == nil || opts.Until == nil || !opts.Ascending || opts.Limit != 50 {
		t.Fatalf("opts = %+v", opts)
	}
	if got := opts.Until.Sub(*opts.Since); got != time.Hour {
		t.Fatalf("window = %v, want 1h", got)
	}

	for _, q := range []string{"limit=-1", "offset=x", "since=yesterday", "order=sideways"} {
		if rec := get(t, h, "/api/actions?"+q, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (brokenLimiter) Wait(context.Context, string) error { return errors.New("dial tcp: connection refused") }

func TestRateLimitFailsOpen(t *testing.T) {
	h := newTestHandler(t, "", nil, brokenLimiter{})
	if rec := get(t, h, "/api/status", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 while the limiter is down", rec.Code)
	}
}

func TestRequestLogCarriesRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	journal := &fakeJournal{actions: []domain.Action{{ID: "a1"}}}
	hs := Handlers{
		Health:  handler.NewHealthHandler(discard()),
		Status:  handler.NewStatusHandler("trade", false, fakeEngine{}),
		Actions: handler.NewActionHandler(journal, discard()),
	}
	h := buildHandler(Config{}, hs, nil, nil, logger)

	get(t, h, "/api/actions/a1", nil)

	var line struct {
		Msg    string `json:"msg"`
		Route  string `json:"route"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line.Msg != "api request" || line.Route != "GET /api/actions/{id}" || line.Status != http.StatusOK {
		t.Fatalf("log line = %+v", line)
	}
}

func TestServeStopsCleanlyOnCancel(t *testing.T) {
	srv := New(Config{}, Handlers{
		Health: handler.NewHealthHandler(discard()),
		Status: handler.NewStatusHandler("trade", false, fakeEngine{}),
	}, nil, nil, discard())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln, time.Second) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
