package connection

import (
	"errors"
	"fmt"
	"time"
)

// Synchronous errors returned by Manager methods.
var (
	ErrNotStarted     = errors.New("manager not started")
	ErrStopped        = errors.New("manager stopped")
	ErrAlreadyStarted = errors.New("manager already started")
	ErrInvalidChannel = errors.New("channel must not be empty")
	ErrQueueFull      = errors.New("outbound queue full")
)

// Failure sentinels carried by events. Check with errors.Is().
var (
	ErrTransport          = errors.New("transport error")
	ErrConnectTimeout     = errors.New("connect timeout")
	ErrAuthRejected       = errors.New("authentication rejected")
	ErrAuthTimeout        = errors.New("authentication timeout")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrDecode             = errors.New("malformed frame")
	ErrQueueOverflow      = errors.New("outbound queue overflow")
	ErrQueueDiscarded     = errors.New("outbound queue discarded")
	ErrPongTimeout        = errors.New("keepalive pongs missed")
)

// TransportError is an unplanned close or a failed dial.
// Extract with errors.As().
type TransportError struct {
	Code int   // Close code, 0 for dial failures
	Err  error // Underlying cause, may be nil
}

func (e *TransportError) Error() string {
	switch {
	case e.Code == 0 && e.Err != nil:
		return "transport error: dial: " + e.Err.Error()
	case e.Err != nil:
		return fmt.Sprintf("transport error: closed with code %d: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("transport error: closed with code %d", e.Code)
	}
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// ConnectTimeoutError means the transport did not open in time.
type ConnectTimeoutError struct {
	Timeout time.Duration
}

func (e *ConnectTimeoutError) Error() string {
	return fmt.Sprintf("connect timeout after %s", e.Timeout)
}

func (e *ConnectTimeoutError) Unwrap() error { return ErrConnectTimeout }

// AuthError is a rejected or unanswered authenticate frame.
type AuthError struct {
	err     error
	Reason  string        // Server-provided reason, empty on timeout
	Timeout time.Duration // Window that elapsed, zero on rejection
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return e.err.Error() + ": " + e.Reason
	}
	return e.err.Error()
}

func (e *AuthError) Unwrap() error { return e.err }

// NewAuthRejected creates an AuthError for an auth_error frame.
func NewAuthRejected(reason string) *AuthError {
	return &AuthError{err: ErrAuthRejected, Reason: reason}
}

// NewAuthTimeout creates an AuthError for an expired auth window.
func NewAuthTimeout(window time.Duration) *AuthError {
	return &AuthError{err: ErrAuthTimeout, Timeout: window}
}

// ReconnectExhaustedError ends automatic recovery until Connect is called.
type ReconnectExhaustedError struct {
	Attempts int
	Last     error // Failure that triggered the final decision
}

func (e *ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("reconnect attempts exhausted after %d attempts", e.Attempts)
}

func (e *ReconnectExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrReconnectExhausted}
	}
	return []error{ErrReconnectExhausted, e.Last}
}

// DecodeError is an inbound frame that could not be decoded.
type DecodeError struct {
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return "malformed frame: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// DroppedError is a queued send that will never be transmitted, either
// evicted by overflow or discarded by Disconnect.
type DroppedError struct {
	err  error
	Kind string // Frame type of the dropped send
	Data []byte
}

func (e *DroppedError) Error() string {
	return fmt.Sprintf("%s: %q frame dropped", e.err, e.Kind)
}

func (e *DroppedError) Unwrap() error { return e.err }
