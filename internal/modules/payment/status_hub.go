package payment

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"templeseva/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins (configure in prod)
}

// StatusUpdate is pushed to checkout pages waiting for a terminal state.
type StatusUpdate struct {
	RecordID string `json:"record_id"`
	Status   string `json:"status"`
}

type statusConn struct {
	conn *websocket.Conn
	send chan StatusUpdate
}

// StatusHub fans applied payment transitions out to websocket subscribers,
// keyed by record id. A checkout page subscribes to its own record only.
type StatusHub struct {
	mu   sync.RWMutex
	subs map[string]map[*statusConn]bool
}

func NewStatusHub() *StatusHub {
	return &StatusHub{subs: make(map[string]map[*statusConn]bool)}
}

func (h *StatusHub) register(recordID string, c *statusConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[recordID] == nil {
		h.subs[recordID] = make(map[*statusConn]bool)
	}
	h.subs[recordID][c] = true
}

func (h *StatusHub) unregister(recordID string, c *statusConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.subs[recordID]; ok && conns[c] {
		delete(conns, c)
		close(c.send)
		if len(conns) == 0 {
			delete(h.subs, recordID)
		}
	}
}

// PublishStatus is called from the transition path. Slow subscribers are
// skipped rather than blocking a payment transition.
func (h *StatusHub) PublishStatus(recordID string, status domain.PaymentStatus) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[recordID] {
		select {
		case c.send <- StatusUpdate{RecordID: recordID, Status: string(status)}:
		default:
		}
	}
}

// Serve upgrades the request and holds the connection until the client
// leaves. The initial status is pushed immediately so a client that
// subscribes after the webhook already landed still sees the outcome.
func (h *StatusHub) Serve(w http.ResponseWriter, r *http.Request, recordID string, current domain.PaymentStatus) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &statusConn{conn: ws, send: make(chan StatusUpdate, 8)}
	h.register(recordID, c)
	c.send <- StatusUpdate{RecordID: recordID, Status: string(current)}

	go h.writeLoop(recordID, c)
	go h.readLoop(recordID, c)
	return nil
}

func (h *StatusHub) writeLoop(recordID string, c *statusConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case update, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *StatusHub) readLoop(recordID string, c *statusConn) {
	defer func() {
		h.unregister(recordID, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
