// Package protocol defines the JSON text frames exchanged with the realtime server.
//
// Every frame is an object with a "type" field plus kind-specific fields:
//
//	{"type": "subscribe", "channel": "matches:42"}
//
// Reserved kinds drive the connection lifecycle; every other kind is an
// application payload passed through unmodified.
package protocol
