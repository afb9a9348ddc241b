package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ogulcanaydogan/credit-guardian/pkg/monitor"
	"github.com/ogulcanaydogan/credit-guardian/pkg/state"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// snapshotMessage is pushed on connect and after every state change.
type snapshotMessage struct {
	Type          string                     `json:"type"`
	Event         state.Event                `json:"event,omitempty"`
	Balance       state.BalanceSnapshot      `json:"balance"`
	Subscriptions state.SubscriptionSnapshot `json:"subscriptions"`
}

type wsClient struct {
	conn    *websocket.Conn
	pending chan state.Event
	done    chan struct{}
}

// hub fans state change notifications out to WebSocket clients. Notifications
// coalesce: a slow client only ever sees the latest snapshot.
type hub struct {
	svc         *monitor.Service
	logger      *slog.Logger
	unsubscribe func()

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub(svc *monitor.Service, logger *slog.Logger) *hub {
	h := &hub{svc: svc, logger: logger, clients: make(map[*wsClient]struct{})}
	h.unsubscribe = svc.State().Subscribe(h.broadcast)
	return h
}

func (h *hub) broadcast(ev state.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.pending <- ev:
		default:
		}
	}
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{conn: conn, pending: make(chan state.Event, 1), done: make(chan struct{})}
	c.pending <- ""

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr, "clients", n)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *hub) readPump(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.pending:
			msg := snapshotMessage{
				Type:          "snapshot",
				Event:         ev,
				Balance:       h.svc.GetLatestBalanceSnapshot(),
				Subscriptions: h.svc.GetLatestSubscriptionSnapshot(),
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.done)
	}
}

func (h *hub) close() {
	h.unsubscribe()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.done)
	}
}
