package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/websocket"

	"screenrec/internal/domain"
)

const (
	DefaultKeepAliveWindow = 500 * time.Millisecond
	sendBuffer             = 64
	writeTimeout           = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}

// Hub fans session events out to websocket clients. It implements
// ports.EventSink. Keep-alive events are coalesced so a chatty client does
// not flood the stream.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	clients  map[*client]struct{}
	snapshot func() domain.Status

	keepAliveMu sync.Mutex
	keepAliveAt time.Time
	debounced   func(func())
}

func NewHub(logger *slog.Logger, keepAliveWindow time.Duration) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if keepAliveWindow <= 0 {
		keepAliveWindow = DefaultKeepAliveWindow
	}
	return &Hub{
		logger:    logger,
		clients:   make(map[*client]struct{}),
		debounced: debounce.New(keepAliveWindow),
	}
}

// SetSnapshotSource provides the status sent to every new client.
func (h *Hub) SetSnapshotSource(fn func() domain.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Serve registers conn and blocks until the peer goes away.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := h.addClient(conn)
	defer h.removeClient(c)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) addClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	snapshot := h.snapshot
	h.mu.Unlock()

	if snapshot != nil {
		if data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: snapshot()}); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}
	}
	h.logger.Debug("event client connected", "remote", conn.RemoteAddr().String())
	return c
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	h.broadcast(Message{Type: MsgSession, Payload: SessionPayload{
		State:   state,
		Reason:  reason,
		Message: ReasonMessage(reason),
	}})
}

func (h *Hub) KeepAlive(at time.Time) {
	h.keepAliveMu.Lock()
	h.keepAliveAt = at
	h.keepAliveMu.Unlock()
	h.debounced(h.flushKeepAlive)
}

func (h *Hub) flushKeepAlive() {
	h.keepAliveMu.Lock()
	at := h.keepAliveAt
	h.keepAliveMu.Unlock()
	h.broadcast(Message{Type: MsgKeepAlive, Payload: KeepAlivePayload{At: at}})
}

func (h *Hub) SessionError(code domain.ErrorCode, detail string) {
	h.broadcast(Message{Type: MsgError, Payload: ErrorPayload{
		Code:    code,
		Message: ErrorMessage(code, detail),
		Detail:  detail,
	}})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("event marshal failed", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !h.offer(c, data) {
			h.logger.Warn("event client too slow, disconnecting")
			h.removeClient(c)
		}
	}
}

// offer queues data without blocking; false means the client buffer is full.
// A client removed concurrently has a closed channel, which is reported as
// delivered since the client is already gone.
func (h *Hub) offer(c *client, data []byte) (ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, live := h.clients[c]; !live {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
