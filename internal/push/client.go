// Package push implements the client side of the websocket push channel:
// a persistent, message-oriented connection with heartbeat and bounded
// automatic reconnection. Text frames "ping"/"pong" are heartbeat-only and
// bypass JSON parsing; everything else is a model.StreamMessage envelope.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nardoguy14/pr-helper/internal/model"
)

// State is the connection state machine of the push client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// ErrReconnectExhausted is surfaced after the reconnection bound is hit.
// Cached data stays usable and polling continues as the fallback.
var ErrReconnectExhausted = errors.New("push: reconnect attempts exhausted")

const (
	defaultHeartbeatInterval = 20 * time.Second
	defaultReconnectWait     = 3 * time.Second
	defaultMaxReconnects     = 5
)

// Conn is the minimal websocket surface the client needs; *websocket.Conn
// satisfies it, and tests substitute scripted connections.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a websocket connection to the given URL.
type DialFunc func(ctx context.Context, url string) (Conn, error)

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handler receives a decoded payload for a registered message type.
type Handler func(payload model.Payload, msg *model.StreamMessage)

// Option configures a Client.
type Option func(*Client)

// WithDialer overrides the websocket dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHeartbeatInterval overrides the liveness ping interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) { c.heartbeatInterval = d }
}

// WithReconnectPolicy overrides the fixed backoff and attempt bound.
func WithReconnectPolicy(wait time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.reconnectWait = wait
		c.maxReconnects = maxAttempts
	}
}

// Client maintains the push channel connection.
type Client struct {
	url    string
	dial   DialFunc
	logger *slog.Logger

	heartbeatInterval time.Duration
	reconnectWait     time.Duration
	maxReconnects     int

	mu        sync.Mutex
	state     State
	stopping  bool
	conn      Conn
	lastErr   error
	handlers  map[string][]Handler
	stateSubs map[int]func(State)
	nextSub   int
	hbStop    chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient creates a client for the given stream URL
// (e.g. "ws://localhost:8080/stream/sess-abc123").
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:               url,
		dial:              gorillaDial,
		logger:            slog.Default(),
		heartbeatInterval: defaultHeartbeatInterval,
		reconnectWait:     defaultReconnectWait,
		maxReconnects:     defaultMaxReconnects,
		state:             StateDisconnected,
		handlers:          make(map[string][]Handler),
		stateSubs:         make(map[int]func(State)),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnMessage registers a handler for a stream message type. Registration is
// not safe after Connect.
func (c *Client) OnMessage(msgType string, h Handler) {
	c.mu.Lock()
	c.handlers[msgType] = append(c.handlers[msgType], h)
	c.mu.Unlock()
}

// OnStateChange registers an observer for connection state transitions and
// returns a cancel function.
func (c *Client) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.stateSubs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the persistent error, if any (set when reconnection gives up).
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	subs := make([]func(State), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// Connect dials the stream once. On success the read loop and heartbeat run
// until the connection drops, after which reconnection is automatic (bounded).
// On failure the same bounded reconnection starts in the background and the
// dial error is returned so the caller can surface it.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		c.setState(StateDisconnected)
		c.scheduleReconnect()
		return err
	}
	c.attach(conn)
	return nil
}

// attach installs a live connection and starts its read loop and heartbeat.
func (c *Client) attach(conn Conn) {
	hbStop := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.lastErr = nil
	c.hbStop = hbStop
	c.mu.Unlock()
	c.setState(StateConnected)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.heartbeat(conn, hbStop)
	}()
	go func() {
		defer c.wg.Done()
		c.readLoop(conn, hbStop)
	}()
}

// Disconnect performs a clean close. It is terminal: no reconnection is
// attempted afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
	c.wg.Wait()
	c.setState(StateDisconnected)
	return nil
}

// heartbeat sends a liveness ping every interval while the connection is up.
// It stops on any exit from the connected state.
func (c *Client) heartbeat(conn Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				c.logger.Debug("push: heartbeat write failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) readLoop(conn Conn, hbStop chan struct{}) {
	defer close(hbStop)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stopping := c.stopping
			c.mu.Unlock()
			if stopping {
				return
			}
			c.logger.Warn("push: connection lost", "error", err)
			_ = conn.Close()
			c.setState(StateDisconnected)
			c.scheduleReconnect()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		// Heartbeat frames bypass JSON parsing entirely.
		switch string(data) {
		case "ping":
			_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
			continue
		case "pong":
			continue
		}

		var msg model.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("push: dropping malformed frame", "error", err)
			continue
		}
		payload, err := model.DecodePayload(&msg)
		if err != nil {
			c.logger.Warn("push: dropping malformed payload", "type", msg.Type, "error", err)
			continue
		}
		if d, ok := payload.(model.Dropped); ok {
			c.logger.Warn("push: dropping unrecognized message type", "type", d.Type)
			continue
		}
		c.dispatch(payload, &msg)
	}
}

func (c *Client) dispatch(payload model.Payload, msg *model.StreamMessage) {
	c.mu.Lock()
	hs := make([]Handler, len(c.handlers[msg.Type]))
	copy(hs, c.handlers[msg.Type])
	c.mu.Unlock()
	for _, h := range hs {
		h(payload, msg)
	}
}

// scheduleReconnect starts the bounded reconnection loop unless the client
// was told to stop.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.reconnectLoop()
	}()
}

func (c *Client) reconnectLoop() {
	for attempt := 1; attempt <= c.maxReconnects; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(c.reconnectWait):
		}

		c.mu.Lock()
		if c.stopping {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		c.setState(StateReconnecting)
		conn, err := c.dial(context.Background(), c.url)
		if err == nil {
			c.logger.Info("push: reconnected", "attempt", attempt)
			c.attach(conn)
			return
		}
		c.logger.Warn("push: reconnect attempt failed",
			"attempt", attempt, "max", c.maxReconnects, "error", err)
		c.setState(StateDisconnected)
	}

	c.mu.Lock()
	c.lastErr = ErrReconnectExhausted
	c.mu.Unlock()
	c.logger.Error("push: giving up after repeated reconnect failures",
		"attempts", c.maxReconnects)
	c.setState(StateDisconnected)
}
