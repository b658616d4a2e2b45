package ws

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// peer is one dashboard connection. out is closed by the hub when the peer
// is removed or the hub shuts down.
type peer struct {
	conn *websocket.Conn
	out  chan []byte

	mu       sync.RWMutex
	channels map[string]bool
}

// subscription is the only message a peer sends:
// {"action":"subscribe"|"unsubscribe","channels":["crudebot:alerts"]}.
// A channel ending in "*" matches by prefix.
type subscription struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

func newPeer(conn *websocket.Conn) *peer {
	p := &peer{
		conn:     conn,
		out:      make(chan []byte, peerBuffer),
		channels: make(map[string]bool, len(relayed)),
	}
	for _, ch := range relayed {
		p.channels[ch] = true
	}
	return p
}

func (p *peer) wants(channel string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.channels[channel] {
		return true
	}
	for sub := range p.channels {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (p *peer) apply(s subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range s.Channels {
		switch s.Action {
		case "subscribe":
			p.channels[ch] = true
		case "unsubscribe":
			delete(p.channels, ch)
		}
	}
}

// readLoop applies subscription changes until the connection fails, then
// removes the peer from h.
func (p *peer) readLoop(h *Hub) {
	defer func() {
		h.remove(p)
		p.conn.Close()
		h.logger.Info("peer disconnected", "peers", h.count())
	}()

	p.conn.SetReadLimit(maxInboundSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("peer closed abnormally", "error", err.Error())
			}
			return
		}
		var s subscription
		if json.Unmarshal(msg, &s) == nil && s.Action != "" {
			p.apply(s)
		}
	}
}

// writeLoop drains out as text frames and pings on idle.
func (p *peer) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-p.out:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
