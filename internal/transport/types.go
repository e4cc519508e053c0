package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrClosed         = errors.New("transport closed")
	ErrSendBufferFull = errors.New("transport send buffer full")
)

// Close codes used by the connection lifecycle.
const (
	CloseNormal    = websocket.CloseNormalClosure   // 1000, caller-initiated
	CloseGoingAway = websocket.CloseGoingAway       // 1001
	CloseAbnormal  = websocket.CloseAbnormalClosure // 1006, no close frame received
)

// EventType identifies a transport event.
type EventType int

const (
	EventMessage EventType = iota + 1
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is emitted by a live connection. Closed is emitted exactly once and is
// always the last event for a ConnID.
type Event struct {
	ConnID     uint64
	Type       EventType
	Data       []byte    // Message payload (EventMessage only)
	ReceivedAt time.Time // Local timestamp when ReadMessage returned
	Code       int       // Close code (EventClosed only)
	Err        error     // Underlying read/write error, nil for clean closes
}

// Sink receives transport events. Implementations must not block indefinitely.
type Sink func(Event)

// Conn is one live bidirectional socket.
type Conn interface {
	// ID returns the identifier passed to Dial.
	ID() uint64

	// Send queues data for writing. It never blocks on network I/O; data
	// accepted here is considered handed off even if the write later fails.
	Send(data []byte) error

	// Close sends a close frame with the given code and releases the socket.
	Close(code int, reason string) error
}

// Dialer opens connections. Dial blocks until the socket is open or ctx ends.
type Dialer interface {
	Dial(ctx context.Context, id uint64, sink Sink) (Conn, error)
}

// Config configures the WebSocket dialer.
type Config struct {
	URL              string        // WebSocket URL (e.g., wss://rt.example.com/ws)
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Upper bound on the HTTP upgrade
	WriteTimeout     time.Duration // Write deadline per frame
	SendBufferSize   int           // Frames queued ahead of the write goroutine
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		SendBufferSize:   256,
		ReadLimit:        1 << 20,
	}
}
