package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrMissingType = errors.New("frame has no type")
	ErrNotObject   = errors.New("frame is not a JSON object")
)

// Outbound reserved kinds.
const (
	KindAuthenticate = "authenticate"
	KindRegister     = "register" // legacy alias of authenticate
	KindSubscribe    = "subscribe"
	KindUnsubscribe  = "unsubscribe"
	KindPing         = "ping"
)

// Inbound reserved kinds.
const (
	KindSystem       = "system"
	KindAuthSuccess  = "auth_success"
	KindAuthError    = "auth_error"
	KindSubscribed   = "subscribed"
	KindUnsubscribed = "unsubscribed"
	KindPong         = "pong"
)

// IsReserved reports whether an inbound kind is consumed by the connection
// lifecycle rather than forwarded to subscribers.
func IsReserved(kind string) bool {
	switch kind {
	case KindSystem, KindAuthSuccess, KindAuthError, KindSubscribed, KindUnsubscribed, KindPong:
		return true
	}
	return false
}

// AuthenticateFrame presents a bearer credential.
type AuthenticateFrame struct {
	Type          string `json:"type"` // "authenticate" or "register"
	Token         string `json:"token"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ChannelFrame is a subscribe or unsubscribe request.
type ChannelFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// PingFrame is the keepalive probe.
type PingFrame struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
}

// Envelope is a decoded inbound frame.
type Envelope struct {
	Kind       string          // Value of the "type" field
	Channel    string          // Value of the "channel" field, empty if absent
	Payload    json.RawMessage // The complete frame as received
	ReceivedAt time.Time       // Local timestamp when the transport returned the frame

	fields map[string]json.RawMessage
}

// Field decodes a top-level field of the frame into v.
// Returns false if the field is absent or does not decode into v.
func (e *Envelope) Field(name string, v any) bool {
	raw, ok := e.fields[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// String returns a string field, or "" if absent or not a string.
func (e *Envelope) String(name string) string {
	var s string
	if !e.Field(name, &s) {
		return ""
	}
	return s
}

// ConnectionID returns the server correlation id carried by a system frame.
func (e *Envelope) ConnectionID() string {
	if id := e.String("connection_id"); id != "" {
		return id
	}
	return e.String("connectionId")
}

// ErrorText returns the error description carried by an auth_error frame.
func (e *Envelope) ErrorText() string {
	if msg := e.String("error"); msg != "" {
		return msg
	}
	return e.String("message")
}
