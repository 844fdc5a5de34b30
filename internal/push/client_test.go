package push

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nardoguy14/pr-helper/internal/model"
)

type frame struct {
	msgType int
	data    []byte
}

// fakeConn is a scripted websocket connection. Frames pushed to in are
// returned from ReadMessage; closing the connection unblocks reads with an
// error, which the client treats as an abnormal close.
type fakeConn struct {
	in      chan frame
	closeCh chan struct{}
	once    sync.Once

	mu     sync.Mutex
	writes []frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan frame, 16),
		closeCh: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.in:
		return fr.msgType, fr.data, nil
	case <-f.closeCh:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(msgType int, data []byte) error {
	select {
	case <-f.closeCh:
		return errors.New("connection closed")
	default:
	}
	f.mu.Lock()
	f.writes = append(f.writes, frame{msgType, data})
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closeCh) })
	return nil
}

func (f *fakeConn) written() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frame, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeConn) sendText(t *testing.T, s string) {
	t.Helper()
	select {
	case f.in <- frame{websocket.TextMessage, []byte(s)}:
	case <-time.After(time.Second):
		t.Fatal("fake connection input full")
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClient_DispatchesRecognizedMessages(t *testing.T) {
	conn := newFakeConn()
	c := NewClient("ws://test/stream/sess-1",
		WithDialer(func(context.Context, string) (Conn, error) { return conn, nil }),
		WithHeartbeatInterval(time.Hour),
	)

	var mu sync.Mutex
	var got []model.PRUpdate
	c.OnMessage(model.MsgPRUpdate, func(p model.Payload, _ *model.StreamMessage) {
		mu.Lock()
		got = append(got, p.(model.PRUpdate))
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	if c.State() != StateConnected {
		t.Fatalf("state = %q, want connected", c.State())
	}

	conn.sendText(t, `{"type":"pr_update","data":{"subscription_id":"acme/lib-a","change_type":"new","item":{"subscription_id":"acme/lib-a","number":7}},"timestamp":"2025-06-01T12:00:00Z"}`)
	// Unknown types and malformed frames are logged and dropped, never fatal.
	conn.sendText(t, `{"type":"mystery","data":{}}`)
	conn.sendText(t, `{not json`)
	conn.sendText(t, "pong")

	waitFor(t, "pr_update dispatch", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0].SubscriptionID != "acme/lib-a" || got[0].ChangeType != model.ChangeNew {
		t.Errorf("unexpected payload: %+v", got[0])
	}
}

func TestClient_RespondsToServerPing(t *testing.T) {
	conn := newFakeConn()
	c := NewClient("ws://test/stream/sess-1",
		WithDialer(func(context.Context, string) (Conn, error) { return conn, nil }),
		WithHeartbeatInterval(time.Hour),
	)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	conn.sendText(t, "ping")

	waitFor(t, "pong reply", func() bool {
		for _, w := range conn.written() {
			if string(w.data) == "pong" {
				return true
			}
		}
		return false
	})
}

func TestClient_HeartbeatPings(t *testing.T) {
	conn := newFakeConn()
	c := NewClient("ws://test/stream/sess-1",
		WithDialer(func(context.Context, string) (Conn, error) { return conn, nil }),
		WithHeartbeatInterval(5*time.Millisecond),
	)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	waitFor(t, "heartbeat ping", func() bool {
		for _, w := range conn.written() {
			if string(w.data) == "ping" {
				return true
			}
		}
		return false
	})
}

func TestClient_ReconnectBound(t *testing.T) {
	var dials atomic.Int32
	first := newFakeConn()
	c := NewClient("ws://test/stream/sess-1",
		WithDialer(func(context.Context, string) (Conn, error) {
			if dials.Add(1) == 1 {
				return first, nil
			}
			return nil, errors.New("refused")
		}),
		WithHeartbeatInterval(time.Hour),
		WithReconnectPolicy(time.Millisecond, 5),
	)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Abnormal close: the server goes away.
	first.Close()

	waitFor(t, "reconnect exhaustion", func() bool {
		return errors.Is(c.Err(), ErrReconnectExhausted)
	})
	// Exactly 5 reconnect attempts after the initial dial, never a sixth.
	if got := dials.Load(); got != 6 {
		t.Errorf("dial count = %d, want 6 (1 initial + 5 retries)", got)
	}
	if c.State() != StateDisconnected {
		t.Errorf("final state = %q, want disconnected", c.State())
	}
}

func TestClient_ReconnectSucceeds(t *testing.T) {
	var dials atomic.Int32
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	c := NewClient("ws://test/stream/sess-1",
		WithDialer(func(context.Context, string) (Conn, error) {
			n := dials.Add(1)
			switch n {
			case 1:
				return conns[0], nil
			case 2:
				return nil, errors.New("refused")
			default:
				return conns[1], nil
			}
		}),
		WithHeartbeatInterval(time.Hour),
		WithReconnectPolicy(time.Millisecond, 5),
	)

	var mu sync.Mutex
	var states []State
	c.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conns[0].Close()

	waitFor(t, "reconnected", func() bool {
		return c.State() == StateConnected && dials.Load() == 3
	})
	defer c.Disconnect()

	if c.Err() != nil {
		t.Errorf("Err() = %v after successful reconnect", c.Err())
	}
	mu.Lock()
	defer mu.Unlock()
	sawReconnecting := false
	for _, s := range states {
		if s == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Error("never observed the reconnecting state")
	}
}

func TestClient_CleanCloseIsTerminal(t *testing.T) {
	var dials atomic.Int32
	conn := newFakeConn()
	c := NewClient("ws://test/stream/sess-1",
		WithDialer(func(context.Context, string) (Conn, error) {
			dials.Add(1)
			return conn, nil
		}),
		WithHeartbeatInterval(time.Hour),
		WithReconnectPolicy(time.Millisecond, 5),
	)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %q, want disconnected", c.State())
	}

	// Give any (incorrect) reconnect loop a chance to run.
	time.Sleep(20 * time.Millisecond)
	if got := dials.Load(); got != 1 {
		t.Errorf("dial count = %d after clean close, want 1", got)
	}

	// Double disconnect is a no-op.
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
}
