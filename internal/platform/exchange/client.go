// Package exchange is the REST client for the commodities exchange simulator.
// Every call is a single attempt: failures come back as *RequestFailure and
// the caller decides what to skip.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// apiKeyHeader carries the static API key on every request.
const apiKeyHeader = "X-API-Key"

// rateLimitKey is the limiter bucket shared by all exchange calls.
const rateLimitKey = "exchange"

// maxBodySize bounds how much of a response is read into memory.
const maxBodySize = 4 << 20

// Config holds the endpoint, credentials and per-call timeout.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger // optional
}

// Client is the REST client for the exchange API. It is safe for concurrent
// use, although the trading loop only ever calls it from one goroutine.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	limiter    domain.RateLimiter
	logger     *slog.Logger
}

// NewClient creates a Client. httpClient may be nil, in which case a client
// with cfg.Timeout is created. limiter may be nil to disable rate limiting.
func NewClient(cfg Config, httpClient *http.Client, limiter domain.RateLimiter) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     cfg.Logger.With(slog.String("component", "exchange_client")),
	}
}

// Securities returns the current quote for every tradable security.
// GET /securities
func (c *Client) Securities(ctx context.Context) ([]domain.Security, error) {
	body, err := c.do(ctx, "get securities", http.MethodGet, "/securities", nil)
	if err != nil {
		return nil, err
	}
	secs, err := decodeSecurities(body)
	if err != nil {
		return nil, fmt.Errorf("exchange: decode securities: %w", err)
	}
	return secs, nil
}

// News returns the news feed, read and unread.
// GET /news
func (c *Client) News(ctx context.Context) ([]domain.NewsItem, error) {
	body, err := c.do(ctx, "get news", http.MethodGet, "/news", nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeNews(body)
	if err != nil {
		return nil, fmt.Errorf("exchange: decode news: %w", err)
	}
	return items, nil
}

// Leases returns the leases currently held.
// GET /leases
func (c *Client) Leases(ctx context.Context) ([]domain.Lease, error) {
	body, err := c.do(ctx, "get leases", http.MethodGet, "/leases", nil)
	if err != nil {
		return nil, err
	}
	leases, err := decodeLeases(body)
	if err != nil {
		return nil, fmt.Errorf("exchange: decode leases: %w", err)
	}
	return leases, nil
}

// MarkNewsRead acknowledges a news item.
// POST /news/{id}?read=true
func (c *Client) MarkNewsRead(ctx context.Context, id int64) error {
	path := "/news/" + strconv.FormatInt(id, 10)
	_, err := c.do(ctx, "mark news read", http.MethodPost, path, url.Values{"read": {"true"}})
	return err
}

// CreateLease leases one unit of ticker. When the exchange echoes the new
// lease, its id is returned; otherwise the returned Lease has a zero ID.
// POST /leases?ticker=...
func (c *Client) CreateLease(ctx context.Context, ticker string) (domain.Lease, error) {
	body, err := c.do(ctx, "create lease", http.MethodPost, "/leases", url.Values{"ticker": {ticker}})
	if err != nil {
		return domain.Lease{}, err
	}
	lease := domain.Lease{Ticker: ticker}
	if gjson.ValidBytes(body) {
		if res := gjson.ParseBytes(body); res.IsObject() {
			created := decodeLease(res)
			lease.ID = created.ID
			if created.Ticker != "" {
				lease.Ticker = created.Ticker
			}
		}
	}
	return lease, nil
}

// ProcessLease runs a conversion through a lease, e.g. crude into a refinery.
// POST /leases/{id}?from1=...&quantity1=...
func (c *Client) ProcessLease(ctx context.Context, req domain.ProcessRequest) error {
	path := "/leases/" + strconv.FormatInt(req.LeaseID, 10)
	params := url.Values{
		"from1":     {req.From},
		"quantity1": {strconv.Itoa(req.Quantity)},
	}
	_, err := c.do(ctx, "process lease", http.MethodPost, path, params)
	return err
}

// PlaceOrder submits a market order.
// POST /orders?ticker=...&type=MARKET&quantity=...&action=...
func (c *Client) PlaceOrder(ctx context.Context, order domain.Order) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("exchange: place order: %w", err)
	}
	params := url.Values{
		"ticker":   {order.Ticker},
		"type":     {string(order.Type)},
		"quantity": {strconv.Itoa(order.Quantity)},
		"action":   {string(order.Action)},
	}
	_, err := c.do(ctx, "place order", http.MethodPost, "/orders", params)
	return err
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do sends one request with the API key header and the per-call timeout, and
// returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, params url.Values) ([]byte, error) {
	fail := func(status int, body string, err error) *RequestFailure {
		return &RequestFailure{Op: op, Method: method, Path: path, StatusCode: status, Body: body, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
			if ctx.Err() != nil {
				return nil, fail(0, "", errors.Join(domain.ErrRateLimited, ctx.Err()))
			}
			// A broken limiter backend must not stop trading.
			c.logger.Warn("rate limiter unavailable, sending unthrottled",
				slog.String("op", op),
				slog.String("error", err.Error()),
			)
		}
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fail(0, "", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fail(0, "", errors.Join(domain.ErrExchange, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fail(resp.StatusCode, "", errors.Join(domain.ErrExchange, fmt.Errorf("read response: %w", err)))
	}

	// The simulator answers 200; other 2xx codes carry no error either.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fail(resp.StatusCode, string(body), statusError(resp.StatusCode))
	}
	return body, nil
}
