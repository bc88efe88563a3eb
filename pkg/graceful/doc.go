// Package graceful wraps a single WebSocket connection in a supervisor that
// hides transient network loss from the consumer.
//
// The supervisor presents the surface of a plain WebSocket (send, close,
// event listeners, readyState-style properties) and adds:
//   - liveness detection through an in-band heartbeat probe and acknowledgement
//   - automatic reconnection once a reachability predicate reports the network usable
//
// # Lifecycle
//
//	IDLE ──Start──▶ CONNECTING ──opened──▶ MONITORED
//	                    ▲   │                  │ closed / heartbeat timeout
//	                    │   │ dial failed      ▼
//	                    │   │             DISCONNECTING
//	                    │   ▼                  │
//	                    └── WAITING_FOR_NETWORK ◀┘
//
// Close moves any state to CLOSED, which is terminal.
//
// # Events
//
// Consumers observe "connected", "disconnected", "killed" and pass-through
// "message" events. Heartbeat acknowledgements never reach listeners, so the
// probe and answer payloads must not collide with application payloads.
//
// # Concurrency
//
// All state transitions run on one goroutine per Supervisor. Transport
// callbacks and timer firings are delivered to it over channels, and events
// are handed to a separate dispatcher goroutine, so listeners may call any
// Supervisor method, including Close.
package graceful

// Version is the library version.
const Version = "0.1.0"
