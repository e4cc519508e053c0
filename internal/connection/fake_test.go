package connection

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rickgao/realtime-client/internal/transport"
)

// fakeDialer is an in-memory transport that lets tests play the server.
type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	dials   int
	failErr error // Dial fails with this error when set
	block   bool  // Dial waits for ctx cancellation

	// onOpen runs in its own goroutine for every successful dial.
	onOpen func(c *fakeConn)
}

func (d *fakeDialer) Dial(ctx context.Context, id uint64, sink transport.Sink) (transport.Conn, error) {
	d.mu.Lock()
	d.dials++
	failErr, block, onOpen := d.failErr, d.block, d.onOpen
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failErr != nil {
		return nil, failErr
	}

	c := &fakeConn{id: id, sink: sink}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()

	if onOpen != nil {
		go onOpen(c)
	}
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErr = err
}

// conn waits for the i-th successful dial.
func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	var c *fakeConn
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if len(d.conns) > i {
			c = d.conns[i]
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "dial %d never happened", i)
	return c
}

// fakeConn records what the client sends and injects server frames.
type fakeConn struct {
	id   uint64
	sink transport.Sink

	mu        sync.Mutex
	sent      [][]byte
	closed    bool
	closeCode int
	sendErr   error
}

func (c *fakeConn) ID() uint64 { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.mu.Unlock()

	c.sink(transport.Event{ConnID: c.id, Type: transport.EventClosed, Code: code, ReceivedAt: time.Now()})
	return nil
}

// deliver plays one inbound frame.
func (c *fakeConn) deliver(frame string) {
	c.sink(transport.Event{ConnID: c.id, Type: transport.EventMessage, Data: []byte(frame), ReceivedAt: time.Now()})
}

// remoteClose simulates the server or network ending the connection.
func (c *fakeConn) remoteClose(code int) {
	c.mu.Lock()
	c.closed = true
	c.closeCode = code
	c.mu.Unlock()
	c.sink(transport.Event{ConnID: c.id, Type: transport.EventClosed, Code: code, ReceivedAt: time.Now()})
}

func (c *fakeConn) isClosed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

// frames returns sent frames decoded as objects.
func (c *fakeConn) frames() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.sent))
	for _, data := range c.sent {
		var f map[string]any
		if json.Unmarshal(data, &f) == nil {
			out = append(out, f)
		}
	}
	return out
}

// types returns the "type" of each sent frame, skipping pings.
func (c *fakeConn) types() []string {
	var out []string
	for _, f := range c.frames() {
		if f["type"] == "ping" {
			continue
		}
		s, _ := f["type"].(string)
		if ch, ok := f["channel"].(string); ok {
			s += ":" + ch
		}
		out = append(out, s)
	}
	return out
}

func (c *fakeConn) count(typ string) int {
	n := 0
	for _, f := range c.frames() {
		if f["type"] == typ {
			n++
		}
	}
	return n
}

// testConfig returns a config with automation off and fast timers.
func testConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.AutoConnect = false
	cfg.KeepaliveInterval = 0
	cfg.ConnectTimeout = time.Second
	cfg.AuthTimeout = time.Second
	cfg.Reconnect.Delay = 10 * time.Millisecond
	return cfg
}

func startManager(t *testing.T, cfg ManagerConfig, d *fakeDialer) (*manager, *Watcher) {
	t.Helper()
	m := NewManager(cfg, d, nil).(*manager)
	w := m.Watch(1024)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m, w
}

// barrier waits until every event posted before it has been processed.
func (m *manager) barrier() {
	_ = m.call(func() error { return nil })
}

// waitEvent returns the next event of type typ, skipping others.
func waitEvent(t *testing.T, w *Watcher, typ EventType) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-w.C:
			require.True(t, ok, "watcher closed while waiting for %s", typ)
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", typ)
			return Event{}
		}
	}
}

// noEvent asserts no event of type typ arrives within d.
func noEvent(t *testing.T, w *Watcher, typ EventType, d time.Duration) {
	t.Helper()
	timeout := time.After(d)
	for {
		select {
		case ev, ok := <-w.C:
			if !ok {
				return
			}
			if ev.Type == typ {
				t.Fatalf("unexpected %s event", typ)
			}
		case <-timeout:
			return
		}
	}
}

func waitState(t *testing.T, m Manager, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == s }, 3*time.Second, 5*time.Millisecond,
		"state %s never reached (now %s)", s, m.State())
}
