// Package connection implements the Connection Manager.
//
// The Connection Manager:
//   - Maintains one WebSocket connection to the realtime server
//   - Authenticates with a bearer credential after every open
//   - Replays the subscription set after every (re)connect
//   - Queues sends while not ready and flushes them FIFO on ready
//   - Probes liveness with ping frames and detects half-open sockets
//   - Reconnects after unplanned closes within an attempt budget
//   - Publishes application messages and lifecycle events to watchers
//
// All state lives in one goroutine (the event loop). Caller calls, transport
// events and timer firings are posted to it as closures and run strictly in
// arrival order, so no field below the loop boundary needs a lock. Socket I/O
// runs on the transport's own goroutines; no Manager method waits on the
// network.
//
// State machine:
//
//	Disconnected --Connect--> Connecting --opened--> Open
//	Open --credential--> Authenticating --auth_success--> Authenticated
//	Authenticating --auth_error/timeout--> Open
//	open family --close 1000--> Disconnected
//	open family --close other--> Disconnected --delay--> Connecting
//	any --Disconnect--> Closing --> Disconnected
package connection
