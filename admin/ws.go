package admin

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"home2l/bus"
	"home2l/resource"
	"home2l/value"
)

// Ping/pong timing, aligned with the gorilla/websocket chat example
// pattern (ground: other_examples' blizzardgw internal/ws handler).
const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // debug surface, not a browser-facing API
}

// wsEvent is the JSON shape streamed to a connected client for every
// ValueStateChanged event on the bus.
type wsEvent struct {
	URI   string `json:"uri"`
	Value string `json:"value"`
	TSMs  int64  `json:"tsMs"`
}

// handleWS upgrades to a WebSocket and streams every resource's
// ValueStateChanged events as JSON, for a human watching the bus live
// without a wire-protocol client (spec §4.7, SPEC_FULL.md DOMAIN
// STACK). This direction is server push only: incoming client frames
// are read and discarded, only to drive the pong/read-deadline loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	wsConn := &wsClient{conn: conn}
	connBus := s.reg.Bus().NewConnection("admin-ws")
	defer connBus.Disconnect()

	// Subscribe to every resource's topic via the multi-level wildcard.
	sub := connBus.Subscribe(bus.T("+", "+", "#"))

	var closeOnce sync.Once
	done := make(chan struct{})
	closeDone := func() { closeOnce.Do(func() { close(done) }) }
	go wsConn.pingLoop(done)
	go discardIncoming(conn, closeDone)

	for {
		select {
		case ev, ok := <-sub.Channel():
			if !ok {
				closeDone()
				return
			}
			re, ok := ev.Payload.(resource.Event)
			if !ok || re.Kind != resource.ValueStateChanged {
				continue
			}
			wsConn.writeJSON(wsEvent{
				URI:   re.URI,
				Value: re.State.ToString(value.ToStringOptions{WithType: true}),
				TSMs:  re.State.TSMs,
			})
		case <-done:
			return
		}
	}
}

func discardIncoming(conn *websocket.Conn, closeDone func()) {
	defer closeDone()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) pingLoop(done chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *wsClient) writeJSON(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.conn.WriteMessage(websocket.TextMessage, b)
}
