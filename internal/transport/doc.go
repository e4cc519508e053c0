// Package transport implements the Transport Adapter component.
//
// The Transport Adapter:
//   - Wraps exactly one WebSocket connection per Dial
//   - Never mutates caller state; every read, close and error is handed to a Sink
//   - Serializes writes through a single write goroutine so Send never blocks
//   - Reports a close code for every termination (1006 when none was received)
package transport
