package exchange

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	apiKey string
}

// newTestServer serves canned bodies keyed by "METHOD /path" and records every
// request it receives.
func newTestServer(t *testing.T, routes map[string]struct {
	status int
	body   string
}) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			apiKey: r.Header.Get("X-API-Key"),
		})
		mu.Unlock()

		route, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(route.status)
		_, _ = io.WriteString(w, route.body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "MW0YJ28H", Timeout: 2 * time.Second}, srv.Client(), nil)
}

func TestSecurities(t *testing.T) {
	srv, requests := newTestServer(t, map[string]struct {
		status int
		body   string
	}{
		"GET /v1/securities": {200, `[{"ticker":"CL","bid":70.15,"ask":71},{"ticker":"CL-AK","bid":60,"ask":58,"position":0}]`},
	})
	c := newTestClient(srv)

	secs, err := c.Securities(context.Background())
	if err != nil {
		t.Fatalf("Securities: %v", err)
	}
	if len(secs) != 2 {
		t.Fatalf("got %d securities, want 2", len(secs))
	}
	if secs[0].Ticker != "CL" || !secs[0].Bid.Equal(decimal.RequireFromString("70.15")) || !secs[0].Ask.Equal(decimal.NewFromInt(71)) {
		t.Fatalf("unexpected CL quote: %+v", secs[0])
	}

	reqs := requests()
	if len(reqs) != 1 || reqs[0].apiKey != "MW0YJ28H" {
		t.Fatalf("api key header not sent: %+v", reqs)
	}
}

func TestSecuritiesRejectsNonNumericPrice(t *testing.T) {
	srv, _ := newTestServer(t, map[string]struct {
		status int
		body   string
	}{
		"GET /v1/securities": {200, `[{"ticker":"CL","bid":"n/a","ask":71}]`},
	})
	if _, err := newTestClient(srv).Securities(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNewsAndLeases(t *testing.T) {
	srv, _ := newTestServer(t, map[string]struct {
		status int
		body   string
	}{
		"GET /v1/news":   {200, `[{"id":7,"headline":"CRUDE DRAW 5000 BARRELS","read":false},{"id":8,"headline":"OLD","read":true}]`},
		"GET /v1/leases": {200, `[{"id":3,"ticker":"CL-STORAGE"},{"id":4,"ticker":"CL-REFINERY"}]`},
	})
	c := newTestClient(srv)

	news, err := c.News(context.Background())
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(news) != 2 || news[0].ID != 7 || news[0].Read || !news[1].Read {
		t.Fatalf("unexpected news: %+v", news)
	}

	leases, err := c.Leases(context.Background())
	if err != nil {
		t.Fatalf("Leases: %v", err)
	}
	l, ok := domain.FindLease(leases, domain.LeaseRefinery)
	if !ok || l.ID != 4 {
		t.Fatalf("refinery lease not decoded: %+v", leases)
	}
}

func TestSubmitRequestsUseQueryParameters(t *testing.T) {
	srv, requests := newTestServer(t, map[string]struct {
		status int
		body   string
	}{
		"POST /v1/orders":    {200, `{"order_id":1}`},
		"POST /v1/leases":    {200, `{"id":11,"ticker":"CL-REFINERY"}`},
		"POST /v1/leases/11": {200, `{}`},
		"POST /v1/news/7":    {200, `{}`},
	})
	c := newTestClient(srv)
	ctx := context.Background()

	if err := c.PlaceOrder(ctx, domain.MarketOrder("CL", 30, domain.OrderSideBuy)); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	lease, err := c.CreateLease(ctx, domain.LeaseRefinery)
	if err != nil {
		t.Fatalf("CreateLease: %v", err)
	}
	if lease.ID != 11 {
		t.Fatalf("lease id = %d, want 11", lease.ID)
	}
	if err := c.ProcessLease(ctx, domain.ProcessRequest{LeaseID: 11, From: "CL", Quantity: 10}); err != nil {
		t.Fatalf("ProcessLease: %v", err)
	}
	if err := c.MarkNewsRead(ctx, 7); err != nil {
		t.Fatalf("MarkNewsRead: %v", err)
	}

	want := []recordedRequest{
		{method: "POST", path: "/v1/orders", query: "action=BUY&quantity=30&ticker=CL&type=MARKET"},
		{method: "POST", path: "/v1/leases", query: "ticker=CL-REFINERY"},
		{method: "POST", path: "/v1/leases/11", query: "from1=CL&quantity1=10"},
		{method: "POST", path: "/v1/news/7", query: "read=true"},
	}
	got := requests()
	if len(got) != len(want) {
		t.Fatalf("got %d requests, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].method != want[i].method || got[i].path != want[i].path || got[i].query != want[i].query {
			t.Errorf("request %d = %+v, want %+v", i, got[i], want[i])
		}
		if got[i].apiKey != "MW0YJ28H" {
			t.Errorf("request %d missing api key", i)
		}
	}
}

func TestCreateLeaseWithoutEcho(t *testing.T) {
	srv, _ := newTestServer(t, map[string]struct {
		status int
		body   string
	}{
		"POST /v1/leases": {200, `true`},
	})
	lease, err := newTestClient(srv).CreateLease(context.Background(), domain.LeaseCrudeStorage)
	if err != nil {
		t.Fatalf("CreateLease: %v", err)
	}
	if lease.ID != 0 || lease.Ticker != domain.LeaseCrudeStorage {
		t.Fatalf("unexpected lease: %+v", lease)
	}
}

func TestFailureCarriesBodyAndSentinel(t *testing.T) {
	srv, _ := newTestServer(t, map[string]struct {
		status int
		body   string
	}{
		"POST /v1/orders":    {429, `{"code":"TOO_MANY_REQUESTS","message":"Please wait 0.5 seconds"}`},
		"GET /v1/securities": {401, `{"code":"NOT_AUTHORIZED","message":"bad key"}`},
	})
	c := newTestClient(srv)

	err := c.PlaceOrder(context.Background(), domain.MarketOrder("CL", 10, domain.OrderSideSell))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	body, ok := ResponseBody(err)
	if !ok || !strings.Contains(body, "TOO_MANY_REQUESTS") {
		t.Fatalf("raw body not preserved: %q", body)
	}
	if !strings.Contains(err.Error(), "Please wait 0.5 seconds") {
		t.Fatalf("message not surfaced: %v", err)
	}

	_, err = c.Securities(context.Background())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	srv, _ := newTestServer(t, map[string]struct {
		status int
		body   string
	}{
		"POST /v1/news/7": {http.StatusNoContent, ``},
		"POST /v1/news/8": {http.StatusMultipleChoices, `{"message":"ambiguous"}`},
	})
	c := newTestClient(srv)

	if err := c.MarkNewsRead(context.Background(), 7); err != nil {
		t.Fatalf("204 should count as success, got %v", err)
	}
	err := c.MarkNewsRead(context.Background(), 8)
	var failure *RequestFailure
	if !errors.As(err, &failure) || failure.StatusCode != http.StatusMultipleChoices {
		t.Fatalf("300 should be a RequestFailure, got %v", err)
	}
}

func TestInvalidOrderNeverSent(t *testing.T) {
	srv, requests := newTestServer(t, nil)
	err := newTestClient(srv).PlaceOrder(context.Background(), domain.MarketOrder("CL", 0, domain.OrderSideBuy))
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	if n := len(requests()); n != 0 {
		t.Fatalf("sent %d requests for an invalid order", n)
	}
}

func TestPerCallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "k", Timeout: 50 * time.Millisecond}, srv.Client(), nil)

	start := time.Now()
	_, err := c.News(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, domain.ErrExchange) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("call was not bounded by the timeout")
	}
}

type stubLimiter struct {
	waits int
	err   error
	block bool
}

func (s *stubLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (s *stubLimiter) Wait(ctx context.Context, _ string) error {
	s.waits++
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func TestRateLimiterConsultedBeforeEveryCall(t *testing.T) {
	srv, requests := newTestServer(t, map[string]struct {
		status int
		body   string
	}{
		"GET /v1/leases": {200, `[]`},
	})
	lim := &stubLimiter{}
	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "k", Timeout: time.Second}, srv.Client(), lim)

	if _, err := c.Leases(context.Background()); err != nil {
		t.Fatalf("Leases: %v", err)
	}
	if lim.waits != 1 {
		t.Fatalf("limiter waited %d times, want 1", lim.waits)
	}
	if n := len(requests()); n != 1 {
		t.Fatalf("requests = %d, want 1", n)
	}
}

func TestBrokenLimiterDoesNotBlockTrading(t *testing.T) {
	srv, requests := newTestServer(t, map[string]struct {
		status int
		body   string
	}{
		"GET /v1/securities": {200, `[{"ticker":"CL","bid":70,"ask":71}]`},
	})
	lim := &stubLimiter{err: errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")}
	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "k", Timeout: time.Second, Logger: discardLogger()}, srv.Client(), lim)

	secs, err := c.Securities(context.Background())
	if err != nil {
		t.Fatalf("Securities: %v", err)
	}
	if len(secs) != 1 {
		t.Fatalf("securities = %d, want 1", len(secs))
	}
	if lim.waits != 1 || len(requests()) != 1 {
		t.Fatalf("waits = %d requests = %d, want 1 and 1", lim.waits, len(requests()))
	}
}

func TestLimiterWaitBoundedByCallTimeout(t *testing.T) {
	srv, requests := newTestServer(t, nil)
	lim := &stubLimiter{block: true}
	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "k", Timeout: 50 * time.Millisecond}, srv.Client(), lim)

	start := time.Now()
	_, err := c.Leases(context.WithoutCancel(context.Background()))
	if !errors.Is(err, domain.ErrRateLimited) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected rate limited deadline error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("limiter wait was not bounded by the call timeout")
	}
	if n := len(requests()); n != 0 {
		t.Fatalf("request sent after limiter timeout: %d requests", n)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
