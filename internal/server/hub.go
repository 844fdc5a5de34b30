package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nardoguy14/pr-helper/internal/events"
	"github.com/nardoguy14/pr-helper/internal/model"
)

// sendBufferSize is the per-connection outbound buffer. A client that falls
// further behind than this starts losing frames rather than blocking the
// publisher.
const sendBufferSize = 64

// Hub tracks open stream sessions and fans published events out to the
// websocket connections attached to them. It implements events.Publisher so
// it can be teed alongside the NATS publisher.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*streamConn // nil value = session opened, no connection yet
}

// streamConn is one attached websocket connection. All writes go through the
// send channel; the write pump is the only writer on the underlying conn.
type streamConn struct {
	sessionID string
	conn      *websocket.Conn
	send      chan any // *model.StreamMessage or raw string frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *streamConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[string]*streamConn),
	}
}

// OpenSession registers a session id issued by the sessions endpoint. The id
// admits websocket connections on /stream/{session} until the session is
// removed.
func (h *Hub) OpenSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[id]; !ok {
		h.sessions[id] = nil
	}
}

// ServeStream handles GET /stream/{session}: upgrades to a websocket, sends
// the connection_established greeting, then pumps published events until the
// client goes away. A session keeps its id across disconnects so the client
// can reconnect to the same URL.
func (h *Hub) ServeStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")

	h.mu.Lock()
	existing, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		writeError(w, http.StatusNotFound, "unknown session: "+sessionID)
		return
	}
	if existing != nil {
		h.mu.Unlock()
		writeError(w, http.StatusConflict, "session already connected: "+sessionID)
		return
	}
	h.mu.Unlock()

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("websocket upgrade failed", "session", sessionID, "error", err)
		return
	}

	c := &streamConn{
		sessionID: sessionID,
		conn:      wsConn,
		send:      make(chan any, sendBufferSize),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	h.sessions[sessionID] = c
	h.mu.Unlock()

	defer func() {
		c.close()
		h.mu.Lock()
		if h.sessions[sessionID] == c {
			h.sessions[sessionID] = nil
		}
		h.mu.Unlock()
	}()

	c.enqueue(envelope(model.MsgConnectionEstablished, model.ConnectionEstablished{
		SessionID: sessionID,
		Message:   "connected",
	}))

	go c.writePump(h.logger)
	c.readPump()
}

// readPump consumes client frames. The only meaningful client frame is the
// "ping" heartbeat, answered with a raw "pong" text frame.
func (c *streamConn) readPump() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.TextMessage && string(data) == "ping" {
			c.enqueue("pong")
		}
	}
}

// writePump is the single writer on the connection.
func (c *streamConn) writePump(logger *slog.Logger) {
	for {
		select {
		case <-c.done:
			return
		case out := <-c.send:
			var err error
			switch v := out.(type) {
			case string:
				err = c.conn.WriteMessage(websocket.TextMessage, []byte(v))
			case *model.StreamMessage:
				err = c.conn.WriteJSON(v)
			}
			if err != nil {
				logger.Debug("stream write failed", "session", c.sessionID, "error", err)
				c.close()
				return
			}
		}
	}
}

// enqueue is non-blocking; a full buffer drops the frame.
func (c *streamConn) enqueue(out any) {
	select {
	case c.send <- out:
	default:
	}
}

// Broadcast wraps a payload in the stream envelope and sends it to every
// attached connection.
func (h *Hub) Broadcast(msgType string, payload any) {
	msg := envelope(msgType, payload)
	if msg == nil {
		h.logger.Warn("failed to marshal stream payload", "type", msgType)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.sessions {
		if c != nil {
			c.enqueue(msg)
		}
	}
}

// Publish implements events.Publisher. Item and stats events become stream
// frames; topics with no stream representation are ignored.
func (h *Hub) Publish(_ context.Context, _ string, event any) error {
	switch ev := event.(type) {
	case events.ItemChanged:
		h.Broadcast(model.MsgPRUpdate, model.PRUpdate{
			SubscriptionID: ev.SubscriptionID,
			ChangeType:     ev.ChangeType,
			Item:           ev.Item,
		})
	case events.StatsUpdated:
		h.Broadcast(model.MsgStatsUpdate, model.StatsUpdate{
			SubscriptionID: ev.SubscriptionID,
			Stats:          ev.Stats,
		})
	}
	return nil
}

// Close drops every session and closes attached connections.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.sessions {
		if c != nil {
			c.close()
		}
		delete(h.sessions, id)
	}
	return nil
}

func envelope(msgType string, payload any) *model.StreamMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return &model.StreamMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
