package connection

import (
	"encoding/json"
	"time"
)

// EventType identifies a manager event.
type EventType int

const (
	EventStateChanged EventType = iota + 1
	EventMessage
	EventAuthenticated
	EventAuthFailed
	EventAuthTimeout
	EventReconnecting
	EventReconnectExhausted
	EventTransportError
	EventConnectTimeout
	EventDisconnected
	EventDecodeError
	EventQueueOverflow
	EventQueueDiscarded
	EventSubscribed
	EventUnsubscribed
	EventSystem
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventMessage:
		return "message"
	case EventAuthenticated:
		return "authenticated"
	case EventAuthFailed:
		return "auth_failed"
	case EventAuthTimeout:
		return "auth_timeout"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnectExhausted:
		return "reconnect_exhausted"
	case EventTransportError:
		return "transport_error"
	case EventConnectTimeout:
		return "connect_timeout"
	case EventDisconnected:
		return "disconnected"
	case EventDecodeError:
		return "decode_error"
	case EventQueueOverflow:
		return "queue_overflow"
	case EventQueueDiscarded:
		return "queue_discarded"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Event is published to watchers. Only the fields relevant to Type are set.
type Event struct {
	Type EventType
	Time time.Time

	State     State // New state (EventStateChanged)
	PrevState State

	Message *Message // EventMessage

	Channel      string // EventSubscribed, EventUnsubscribed
	ConnectionID string // Server-assigned id, when known

	Attempt     int           // EventReconnecting, EventReconnectExhausted
	MaxAttempts int           // Configured budget, negative for unlimited
	Delay       time.Duration // EventReconnecting

	Code      int  // Close code (EventTransportError, EventDisconnected)
	Requested bool // EventDisconnected caused by Disconnect or Stop

	// Err is one of the typed errors in this package for failure events.
	Err error
}

// Message is an application frame forwarded to watchers.
type Message struct {
	Kind         string          // Frame "type"
	Channel      string          // Frame "channel", empty if absent
	Payload      json.RawMessage // Complete frame as received
	ReceivedAt   time.Time
	ConnectionID string // Server-assigned id of the connection it arrived on
}

// Decode unmarshals the full frame into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Direction of a raw frame.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// RawFrameHook observes reserved frames. It runs on the event loop and must
// return quickly. Outbound frames carrying a credential are passed as sent.
type RawFrameHook func(dir Direction, kind string, data []byte)
