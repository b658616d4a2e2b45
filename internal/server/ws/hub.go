// Package ws relays the bot's signal bus (cycle reports, executed actions,
// alerts) to dashboard clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096
	peerBuffer     = 256
)

// relayed are the bus channels every new peer starts subscribed to.
var relayed = []string{
	domain.ChannelActions,
	domain.ChannelCycles,
	domain.ChannelAlerts,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks happen in the CORS middleware in front of /ws.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Config is the bot metadata sent to each peer as its first frame.
type Config struct {
	Mode       string
	Strategies []string
	StartedAt  time.Time
}

// Hub fans bus messages out to connected peers. After Run returns, new
// connections are closed immediately.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger
	cfg    Config

	mu     sync.Mutex
	peers  map[*peer]struct{}
	closed bool
}

func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	cfg.Strategies = append([]string(nil), cfg.Strategies...)
	return &Hub{
		bus:    bus,
		logger: logger.With(slog.String("component", "ws_hub")),
		cfg:    cfg,
		peers:  make(map[*peer]struct{}),
	}
}

// Run subscribes to the relayed channels and forwards until ctx is
// cancelled, then disconnects every peer.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, channel := range relayed {
		msgs, err := h.bus.Subscribe(ctx, channel)
		if err != nil {
			h.logger.Error("subscribe failed", slog.String("channel", channel), slog.String("error", err.Error()))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.forward(ctx, channel, msgs)
		}()
	}

	<-ctx.Done()
	h.closeAll()
	wg.Wait()
	return ctx.Err()
}

func (h *Hub) forward(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription ended", slog.String("channel", channel))
				return
			}
			frame, err := wrap(channel, data)
			if err != nil {
				h.logger.Warn("unencodable bus payload", slog.String("channel", channel))
				continue
			}
			h.broadcast(channel, frame)
		}
	}
}

func (h *Hub) broadcast(channel string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		if !p.wants(channel) {
			continue
		}
		select {
		case p.out <- frame:
		default:
			h.logger.Warn("peer too slow, frame dropped", slog.String("channel", channel))
		}
	}
}

// add registers p unless the hub has shut down.
func (h *Hub) add(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p] = struct{}{}
	return true
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		close(p.out)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for p := range h.peers {
		delete(h.peers, p)
		close(p.out)
	}
}

func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// HandleWS upgrades the request and starts the peer's read and write loops.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	p := newPeer(conn)
	if hello, err := h.hello(); err == nil {
		p.out <- hello
	}
	if !h.add(p) {
		conn.Close()
		return
	}
	h.logger.Info("peer connected", slog.Int("peers", h.count()))

	go p.writeLoop()
	go p.readLoop(h)
}

// hello is the bot_status frame a peer receives on connect.
func (h *Hub) hello() ([]byte, error) {
	type status struct {
		Mode          string   `json:"mode"`
		WSConnected   bool     `json:"ws_connected"`
		UptimeSeconds int64    `json:"uptime_seconds"`
		Strategies    []string `json:"strategies"`
	}
	return json.Marshal(struct {
		Type    string `json:"type"`
		Payload status `json:"payload"`
	}{
		Type: "bot_status",
		Payload: status{
			Mode:          h.cfg.Mode,
			WSConnected:   true,
			UptimeSeconds: max(int64(time.Since(h.cfg.StartedAt).Seconds()), 0),
			Strategies:    h.cfg.Strategies,
		},
	})
}

// wrap puts data in a {"channel","data"} envelope. Payloads that are not
// JSON are sent as a JSON string.
func wrap(channel string, data []byte) ([]byte, error) {
	raw := json.RawMessage(data)
	if !json.Valid(data) {
		quoted, err := json.Marshal(string(data))
		if err != nil {
			return nil, err
		}
		raw = quoted
	}
	return json.Marshal(struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}{channel, raw})
}
