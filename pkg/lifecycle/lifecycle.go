package lifecycle

// State is the connection state of a replication puller.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateStreaming
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateHandshaking:
		return "Handshaking"
	case StateStreaming:
		return "Streaming"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Title returns the short lowercase word used in status strings. A running
// puller is only Disconnected after a failed attempt, so it reads "failed".
func (s State) Title() string {
	switch s {
	case StateDisconnected:
		return "failed"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(previous, current State, reason string)

// OnStateChange calls f.
func (f EmitterFunc) OnStateChange(previous, current State, reason string) {
	f(previous, current, reason)
}
