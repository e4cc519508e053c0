package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/realtime-client/internal/outbound"
	"github.com/rickgao/realtime-client/internal/protocol"
	"github.com/rickgao/realtime-client/internal/retry"
	"github.com/rickgao/realtime-client/internal/subscription"
	"github.com/rickgao/realtime-client/internal/transport"
)

// Manager owns the realtime connection.
type Manager interface {
	// Start runs the event loop and, with AutoConnect, opens the connection.
	Start(ctx context.Context) error

	// Stop closes the connection and ends the event loop.
	Stop(ctx context.Context) error

	// Connect opens the connection and resets the reconnect counter.
	// No-op while connecting or open.
	Connect() error

	// Disconnect closes the connection with code 1000, cancels all timers
	// and discards queued sends. Automatic reconnection stops.
	Disconnect() error

	// Send transmits an application frame when ready and queues it
	// otherwise. It never fails because the connection is down.
	Send(kind string, fields any) error

	// Subscribe adds a channel to the subscription set.
	Subscribe(channel string) error

	// Unsubscribe removes a channel from the subscription set.
	Unsubscribe(channel string) error

	// SetCredential replaces the bearer token, re-authenticating if open.
	SetCredential(token string) error

	// State returns the current connection state.
	State() State

	// Subscriptions returns the subscription set, sorted.
	Subscriptions() []string

	// Watch registers an event subscriber with the given channel buffer.
	Watch(buffer int) *Watcher

	// Stats returns current connection statistics.
	Stats() ManagerStats
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State             State
	ConnectionID      string // Server-assigned, empty until a system frame arrives
	Authenticated     bool   // Current credential was accepted on this connection
	ReconnectAttempts int    // Attempts consumed in the current incident
	Subscriptions     int
	QueueLen          int

	Connects       int64 // Successful opens
	FramesSent     int64
	FramesReceived int64
	Messages       int64 // Application messages forwarded
	QueueDropped   int64 // Evicted on overflow
	QueueDiscarded int64 // Cleared by Disconnect
	DecodeErrors   int64
	EventsDropped  int64 // Events skipped by slow watchers
}

// counters are owned by the event loop.
type counters struct {
	connects       int64
	framesSent     int64
	framesReceived int64
	messages       int64
	decodeErrors   int64
}

// queuedFrame is an encoded send waiting for ready.
type queuedFrame struct {
	kind       string
	data       []byte
	enqueuedAt time.Time
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	dialer transport.Dialer
	logger *slog.Logger
	events *eventHub

	inbox   chan func()
	stopped chan struct{} // closed when the event loop exits
	started atomic.Bool
	state   atomic.Int32 // mirror of loop.state for State()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	loop loopState
}

// loopState is touched only by the event loop goroutine.
type loopState struct {
	state      State
	conn       transport.Conn
	connGen    uint64 // id of the current dial; older transport events are stale
	dialCancel context.CancelFunc

	policy *retry.Policy
	subs   *subscription.Registry
	queue  *outbound.Queue[queuedFrame]
	timers timerSet

	credential      string
	credentialValid bool
	authID          string // correlation id of the in-flight authenticate frame
	resetOnInbound  bool   // auth-free: reset the counter on first inbound frame

	connectionID string
	missedPongs  int
	pingSeq      uint64

	counters counters
}

// NewManager creates a new Connection Manager. A nil dialer uses the
// gorilla/websocket transport built from cfg.Transport.
func NewManager(cfg ManagerConfig, dialer transport.Dialer, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "connection")

	if dialer == nil {
		dialer = transport.NewDialer(cfg.Transport, logger)
	}
	if cfg.InboxSize < 1 {
		cfg.InboxSize = DefaultManagerConfig().InboxSize
	}
	if cfg.AuthFrameType == "" {
		cfg.AuthFrameType = protocol.KindAuthenticate
	}

	m := &manager{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger,
		events:  newEventHub(),
		inbox:   make(chan func(), cfg.InboxSize),
		stopped: make(chan struct{}),
	}

	m.loop.policy = retry.NewPolicy(cfg.Reconnect)
	m.loop.subs = subscription.NewRegistry(cfg.InitialChannels...)
	m.loop.queue = outbound.NewQueue[queuedFrame](cfg.QueueSize, cfg.Overflow)
	m.loop.credential = cfg.Credential
	if cfg.Credentials != nil {
		m.loop.credential = cfg.Credentials.Token()
	}

	return m
}

// Start begins the connection manager.
func (m *manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	if m.cfg.Credentials != nil {
		m.wg.Add(1)
		go m.forwardCredentials()
	}

	m.logger.Info("connection manager started",
		"url", m.cfg.Transport.URL,
		"auto_connect", m.cfg.AutoConnect,
		"subscriptions", len(m.cfg.InitialChannels),
	)

	if m.cfg.AutoConnect {
		return m.Connect()
	}
	return nil
}

// Stop gracefully shuts down the connection.
func (m *manager) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return ErrNotStarted
	}

	// Close the socket politely before the loop goes away. ErrStopped here
	// means a previous Stop already did it.
	_ = m.call(func() error {
		m.shutdown()
		return nil
	})

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.events.closeAll()
		m.logger.Info("connection manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the event loop.
func (m *manager) run() {
	defer m.wg.Done()
	defer close(m.stopped)

	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return
		case fn := <-m.inbox:
			fn()
		}
	}
}

// forwardCredentials relays provider changes into the loop.
func (m *manager) forwardCredentials() {
	defer m.wg.Done()

	changes := m.cfg.Credentials.Changes()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-changes:
			if err := m.SetCredential(m.cfg.Credentials.Token()); err != nil {
				return
			}
		}
	}
}

// post queues fn for the event loop. Returns false once the loop has exited.
func (m *manager) post(fn func()) bool {
	select {
	case <-m.stopped:
		return false
	default:
	}

	select {
	case m.inbox <- fn:
		return true
	case <-m.stopped:
		return false
	}
}

// call runs fn on the event loop and waits for its result. fn must not do
// network I/O.
func (m *manager) call(fn func() error) error {
	if !m.started.Load() {
		return ErrNotStarted
	}

	result := make(chan error, 1)
	if !m.post(func() { result <- fn() }) {
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-m.stopped:
		// The loop may have run fn just before exiting.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Connect opens the connection.
func (m *manager) Connect() error {
	return m.call(func() error {
		if m.loop.state != StateDisconnected {
			return nil
		}
		m.stopTimer(timerReconnect)
		m.loop.policy.Reset()
		m.dial()
		return nil
	})
}

// Disconnect closes the connection at the caller's request.
func (m *manager) Disconnect() error {
	return m.call(func() error {
		m.disconnect("client disconnect")
		return nil
	})
}

// Send encodes and transmits or queues an application frame.
func (m *manager) Send(kind string, fields any) error {
	data, err := protocol.Encode(kind, fields)
	if err != nil {
		return fmt.Errorf("encode %q: %w", kind, err)
	}

	return m.call(func() error {
		frame := queuedFrame{kind: kind, data: data, enqueuedAt: time.Now()}

		if m.ready() && m.drain() && m.transmit(frame.data) {
			return nil
		}
		return m.enqueue(frame)
	})
}

// Subscribe adds channel to the subscription set.
func (m *manager) Subscribe(channel string) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	return m.call(func() error {
		if m.loop.subs.Add(channel) {
			m.drain()
		}
		return nil
	})
}

// Unsubscribe removes channel from the subscription set.
func (m *manager) Unsubscribe(channel string) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	return m.call(func() error {
		removed, announced := m.loop.subs.Remove(channel)
		if removed && announced && m.loop.conn != nil {
			m.sendReserved(protocol.ChannelFrame{Type: protocol.KindUnsubscribe, Channel: channel}, protocol.KindUnsubscribe)
		}
		return nil
	})
}

// SetCredential replaces the bearer token.
func (m *manager) SetCredential(token string) error {
	return m.call(func() error {
		m.loop.credential = token
		m.loop.credentialValid = false

		switch {
		case !m.loop.state.IsOpen():
		case token != "":
			m.authenticate()
		default:
			m.clearAuthentication()
		}
		return nil
	})
}

// State returns the current state without a round trip to the loop.
func (m *manager) State() State {
	return State(m.state.Load())
}

// Subscriptions returns the subscription set.
func (m *manager) Subscriptions() []string {
	var out []string
	if err := m.call(func() error {
		out = m.loop.subs.Channels()
		return nil
	}); err != nil && !m.started.Load() {
		// Before Start the set only holds the initial channels.
		return subscription.NewRegistry(m.cfg.InitialChannels...).Channels()
	}
	return out
}

// Watch registers an event subscriber.
func (m *manager) Watch(buffer int) *Watcher {
	return m.events.add(buffer)
}

// Stats returns current statistics. After Stop only State is populated.
func (m *manager) Stats() ManagerStats {
	var s ManagerStats
	err := m.call(func() error {
		l := &m.loop
		q := l.queue.Stats()
		s = ManagerStats{
			State:             l.state,
			ConnectionID:      l.connectionID,
			Authenticated:     l.credentialValid,
			ReconnectAttempts: l.policy.Attempts(),
			Subscriptions:     l.subs.Len(),
			QueueLen:          q.Len,
			Connects:          l.counters.connects,
			FramesSent:        l.counters.framesSent,
			FramesReceived:    l.counters.framesReceived,
			Messages:          l.counters.messages,
			QueueDropped:      q.TotalDropped,
			QueueDiscarded:    q.TotalDiscarded,
			DecodeErrors:      l.counters.decodeErrors,
		}
		return nil
	})
	if err != nil {
		s.State = m.State()
	}
	s.EventsDropped = m.events.dropped.Load()
	return s
}

// --- event loop internals ---

// setState transitions and publishes the change.
func (m *manager) setState(s State) {
	prev := m.loop.state
	if prev == s {
		return
	}
	m.loop.state = s
	m.state.Store(int32(s))

	m.logger.Debug("state changed", "from", prev, "to", s)
	m.emit(Event{Type: EventStateChanged, State: s, PrevState: prev})
}

// emit stamps and publishes an event.
func (m *manager) emit(ev Event) {
	ev.Time = time.Now()
	if ev.ConnectionID == "" {
		ev.ConnectionID = m.loop.connectionID
	}
	m.events.publish(ev)
}

// ready reports whether application frames may be transmitted.
func (m *manager) ready() bool {
	switch m.loop.state {
	case StateAuthenticated:
		return true
	case StateOpen:
		return !m.authEnabled()
	default:
		return false
	}
}

// authEnabled reports whether this deployment authenticates.
func (m *manager) authEnabled() bool {
	return m.loop.credential != "" || m.cfg.Credentials != nil || m.cfg.RequireAuth
}

// transmit hands data to the live transport. Returns false if it was not
// accepted, leaving the caller to keep it.
func (m *manager) transmit(data []byte) bool {
	if m.loop.conn == nil {
		return false
	}
	if err := m.loop.conn.Send(data); err != nil {
		m.logger.Debug("transport refused frame", "error", err)
		return false
	}
	m.loop.counters.framesSent++
	return true
}

// sendReserved encodes and transmits a lifecycle frame, passing it to the
// raw frame hook.
func (m *manager) sendReserved(frame any, kind string) bool {
	data, err := protocol.Marshal(frame)
	if err != nil {
		m.logger.Error("encode reserved frame", "kind", kind, "error", err)
		return false
	}
	if m.cfg.RawFrameHook != nil {
		m.cfg.RawFrameHook(Outbound, kind, data)
	}
	return m.transmit(data)
}

// enqueue stores a frame until ready.
func (m *manager) enqueue(frame queuedFrame) error {
	evicted, dropped, err := m.loop.queue.Push(frame)
	if err != nil {
		return ErrQueueFull
	}
	if dropped {
		m.logger.Warn("outbound queue overflow, dropped oldest", "kind", evicted.kind)
		m.emit(Event{
			Type: EventQueueOverflow,
			Err:  &DroppedError{err: ErrQueueOverflow, Kind: evicted.kind, Data: evicted.data},
		})
	}
	return nil
}

// drain replays pending subscriptions, then flushes queued frames FIFO while
// the transport accepts them. It reports whether both completed, in which
// case a newer frame may be transmitted directly.
func (m *manager) drain() bool {
	if !m.ready() || !m.replayPending() {
		return false
	}
	for {
		frame, ok := m.loop.queue.Peek()
		if !ok {
			return true
		}
		if !m.transmit(frame.data) {
			return false
		}
		m.loop.queue.Pop()
	}
}

// discardQueue drops every queued frame, emitting one event each.
func (m *manager) discardQueue() {
	for _, frame := range m.loop.queue.Discard() {
		m.emit(Event{
			Type: EventQueueDiscarded,
			Err:  &DroppedError{err: ErrQueueDiscarded, Kind: frame.kind, Data: frame.data},
		})
	}
}

// dial starts a connection attempt.
func (m *manager) dial() {
	m.loop.connGen++
	gen := m.loop.connGen

	ctx, cancel := context.WithCancel(m.ctx)
	m.loop.dialCancel = cancel

	m.setState(StateConnecting)
	if m.cfg.ConnectTimeout > 0 {
		m.startTimer(timerConnect, m.cfg.ConnectTimeout)
	}

	// Transport events wait on ready until the loop has installed the conn,
	// so nothing from this socket is seen before the open.
	ready := make(chan struct{})
	sink := func(ev transport.Event) {
		select {
		case <-ready:
		case <-m.stopped:
			return
		}
		m.post(func() { m.onTransportEvent(ev) })
	}

	m.logger.Debug("dialing", "url", m.cfg.Transport.URL, "conn_gen", gen)

	go func() {
		conn, err := m.dialer.Dial(ctx, gen, sink)
		if !m.post(func() { m.onDialResult(gen, conn, err, ready) }) {
			close(ready)
			if conn != nil {
				_ = conn.Close(transport.CloseGoingAway, "shutdown")
			}
		}
	}()
}

func (m *manager) onDialResult(gen uint64, conn transport.Conn, err error, ready chan struct{}) {
	defer close(ready)

	if gen != m.loop.connGen || m.loop.state != StateConnecting {
		// The attempt was abandoned while dialing.
		if conn != nil {
			go conn.Close(transport.CloseNormal, "superseded")
		}
		return
	}

	m.stopTimer(timerConnect)
	if m.loop.dialCancel != nil {
		m.loop.dialCancel()
		m.loop.dialCancel = nil
	}

	if err != nil {
		m.logger.Warn("dial failed", "error", err)
		failure := &TransportError{Err: err}
		m.setState(StateDisconnected)
		m.emit(Event{Type: EventTransportError, Err: failure})
		m.scheduleReconnect(failure)
		return
	}

	m.loop.conn = conn
	m.onOpen()
}

// onOpen runs when a transport opens.
func (m *manager) onOpen() {
	m.loop.counters.connects++
	m.loop.missedPongs = 0
	m.loop.credentialValid = false
	m.loop.subs.MarkAllPending()

	m.logger.Info("connected", "url", m.cfg.Transport.URL, "conn_gen", m.loop.connGen)
	m.setState(StateOpen)
	m.startKeepalive()

	switch {
	case m.loop.credential != "":
		m.authenticate()
	case !m.authEnabled():
		m.loop.resetOnInbound = true
		m.becomeReady()
	}
}

// becomeReady replays subscriptions then flushes the queue.
func (m *manager) becomeReady() {
	if !m.loop.resetOnInbound {
		m.loop.policy.Reset()
	}
	m.drain()
}

// replayPending announces pending channels in insertion order. It stops at
// the first subscribe the transport refuses; the rest wait for the next drain.
func (m *manager) replayPending() bool {
	for _, ch := range m.loop.subs.Pending() {
		if !m.sendReserved(protocol.ChannelFrame{Type: protocol.KindSubscribe, Channel: ch}, protocol.KindSubscribe) {
			return false
		}
		m.loop.subs.MarkAnnounced(ch)
	}
	return true
}

// onTransportEvent handles events from the live socket.
func (m *manager) onTransportEvent(ev transport.Event) {
	if ev.ConnID != m.loop.connGen || m.loop.conn == nil {
		return // stale socket
	}

	switch ev.Type {
	case transport.EventMessage:
		m.dispatch(ev.Data, ev.ReceivedAt)
	case transport.EventClosed:
		m.onClosed(ev.Code, ev.Err)
	}
}

// onClosed handles the end of the current connection.
func (m *manager) onClosed(code int, cause error) {
	m.loop.conn = nil
	m.loop.connGen++
	m.stopTimer(timerKeepalive)
	m.stopTimer(timerAuth)
	m.loop.subs.MarkAllPending()
	m.loop.credentialValid = false
	m.loop.resetOnInbound = false
	m.loop.connectionID = ""

	m.setState(StateDisconnected)

	if code == transport.CloseNormal {
		m.logger.Info("connection closed by server", "code", code)
		m.emit(Event{Type: EventDisconnected, Code: code})
		return
	}

	m.logger.Warn("connection lost", "code", code, "error", cause)
	failure := &TransportError{Code: code, Err: cause}
	m.emit(Event{Type: EventTransportError, Code: code, Err: failure})
	m.scheduleReconnect(failure)
}

// scheduleReconnect applies the reconnection policy after a failure.
func (m *manager) scheduleReconnect(cause error) {
	if !m.cfg.AutoReconnect {
		return
	}

	attempt, delay, ok := m.loop.policy.Next()
	if !ok {
		attempts := m.loop.policy.Attempts()
		m.logger.Error("reconnect attempts exhausted", "attempts", attempts)
		m.emit(Event{
			Type:        EventReconnectExhausted,
			Attempt:     attempts,
			MaxAttempts: m.loop.policy.MaxAttempts(),
			Err:         &ReconnectExhaustedError{Attempts: attempts, Last: cause},
		})
		return
	}

	m.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
	m.emit(Event{
		Type:        EventReconnecting,
		Attempt:     attempt,
		MaxAttempts: m.loop.policy.MaxAttempts(),
		Delay:       delay,
	})
	m.startTimer(timerReconnect, delay)
}

func (m *manager) onReconnectDue() {
	if m.loop.state != StateDisconnected {
		return
	}
	m.dial()
}

func (m *manager) onConnectTimeout() {
	if m.loop.state != StateConnecting {
		return
	}
	if m.loop.dialCancel != nil {
		m.loop.dialCancel()
		m.loop.dialCancel = nil
	}
	m.loop.connGen++ // a late dial result is now stale

	m.logger.Warn("connect timeout", "timeout", m.cfg.ConnectTimeout)
	failure := &ConnectTimeoutError{Timeout: m.cfg.ConnectTimeout}
	m.setState(StateDisconnected)
	m.emit(Event{Type: EventConnectTimeout, Err: failure})
	m.scheduleReconnect(failure)
}

// disconnect tears down at the caller's request.
func (m *manager) disconnect(reason string) {
	m.stopAllTimers()
	if m.loop.dialCancel != nil {
		m.loop.dialCancel()
		m.loop.dialCancel = nil
	}
	m.loop.connGen++ // late close events from the old socket are stale

	if conn := m.loop.conn; conn != nil {
		m.setState(StateClosing)
		m.loop.conn = nil
		go conn.Close(transport.CloseNormal, reason)
	}

	m.loop.policy.Reset()
	m.loop.subs.MarkAllPending()
	m.loop.credentialValid = false
	m.loop.resetOnInbound = false
	m.loop.connectionID = ""
	m.discardQueue()

	m.setState(StateDisconnected)
	m.logger.Info("disconnected", "reason", reason)
	m.emit(Event{Type: EventDisconnected, Code: transport.CloseNormal, Requested: true})
}

// shutdown is disconnect for Stop. Safe to run twice.
func (m *manager) shutdown() {
	if m.loop.state == StateDisconnected && m.loop.conn == nil && !m.timerActive(timerReconnect) {
		m.stopAllTimers()
		return
	}
	m.disconnect("client shutdown")
}
