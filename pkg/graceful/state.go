package graceful

// State is the reconnection controller state.
type State int32

const (
	// StateIdle indicates the supervisor was created but not started.
	StateIdle State = iota

	// StateConnecting indicates a transport session is being opened.
	StateConnecting

	// StateMonitored indicates an open session under heartbeat monitoring.
	StateMonitored

	// StateDisconnecting indicates the session was lost and timers are being torn down.
	StateDisconnecting

	// StateWaitingForNetwork indicates the reachability predicate is being polled.
	StateWaitingForNetwork

	// StateClosed indicates the supervisor has been closed. Terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateMonitored:
		return "MONITORED"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateWaitingForNetwork:
		return "WAITING_FOR_NETWORK"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ReadyState mirrors the readyState of a WebSocket.
type ReadyState int32

const (
	// ReadyStateNone is reported when there is no session at all.
	ReadyStateNone ReadyState = iota - 1
	ReadyStateConnecting
	ReadyStateOpen
	ReadyStateClosing
	ReadyStateClosed
)

func (rs ReadyState) String() string {
	switch rs {
	case ReadyStateNone:
		return "NONE"
	case ReadyStateConnecting:
		return "CONNECTING"
	case ReadyStateOpen:
		return "OPEN"
	case ReadyStateClosing:
		return "CLOSING"
	case ReadyStateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
