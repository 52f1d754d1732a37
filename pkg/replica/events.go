package replica

import (
	"time"

	"github.com/bft-labs/walfollow/internal/puller"
	"github.com/bft-labs/walfollow/pkg/lifecycle"
	"github.com/bft-labs/walfollow/pkg/wire"
)

// State is the connection state of a session.
type State = lifecycle.State

// Session states.
const (
	StateDisconnected = lifecycle.StateDisconnected
	StateConnecting   = lifecycle.StateConnecting
	StateHandshaking  = lifecycle.StateHandshaking
	StateStreaming    = lifecycle.StateStreaming
	StateStopped      = lifecycle.StateStopped
)

// StateChangeEvent is emitted on every state transition.
type StateChangeEvent struct {
	Source   string
	Previous State
	Current  State
	Reason   string
}

// RecordAppliedEvent is emitted after a record was applied and the confirmed
// LSN advanced.
type RecordAppliedEvent struct {
	Source    string
	LSN       int64
	Timestamp time.Time
	Size      int
	Lag       time.Duration
}

// ConnectionErrorEvent is emitted on every transport failure.
type ConnectionErrorEvent struct {
	Source  string
	Stage   string
	Error   error
	Attempt int
}

// EventHandler receives session events. Methods are called synchronously
// from the puller goroutine and should return quickly.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnRecordApplied(event RecordAppliedEvent)
	OnConnectionError(event ConnectionErrorEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)         {}
func (BaseEventHandler) OnRecordApplied(RecordAppliedEvent)     {}
func (BaseEventHandler) OnConnectionError(ConnectionErrorEvent) {}

// eventEmitterWrapper adapts EventHandler to the puller observer.
type eventEmitterWrapper struct {
	source  string
	handler EventHandler
}

var _ puller.Observer = (*eventEmitterWrapper)(nil)

func (e *eventEmitterWrapper) OnStateChange(previous, current lifecycle.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Source:   e.source,
		Previous: previous,
		Current:  current,
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnRecordApplied(rec wire.Record, lag time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnRecordApplied(RecordAppliedEvent{
		Source:    e.source,
		LSN:       rec.LSN,
		Timestamp: rec.Time(),
		Size:      len(rec.Payload),
		Lag:       lag,
	})
}

func (e *eventEmitterWrapper) OnConnectionError(stage string, err error, attempt int) {
	if e.handler == nil {
		return
	}
	e.handler.OnConnectionError(ConnectionErrorEvent{
		Source:  e.source,
		Stage:   stage,
		Error:   err,
		Attempt: attempt,
	})
}
