package logship

import (
	"time"

	"github.com/bft-labs/logship/internal/app"
	"github.com/bft-labs/logship/internal/clef"
	"github.com/bft-labs/logship/internal/domain"
)

// Level is the severity of an event.
type Level = domain.Level

// Levels, from least to most severe.
const (
	LevelVerbose     = domain.LevelVerbose
	LevelDebug       = domain.LevelDebug
	LevelInformation = domain.LevelInformation
	LevelWarning     = domain.LevelWarning
	LevelError       = domain.LevelError
	LevelFatal       = domain.LevelFatal
)

// ParseLevel parses a level name such as "Warning", "warn" or "WRN".
func ParseLevel(s string) (Level, error) {
	return domain.ParseLevel(s)
}

// Event is a formatted payload fragment with its level.
type Event = domain.Event

// NewEvent wraps an already formatted payload. The payload must be a single
// JSON object without a trailing newline.
func NewEvent(payload []byte, level Level) Event {
	return domain.NewEvent(payload, level)
}

// LevelSwitch is a thread-safe minimum level shared between a sink and
// other subsystems.
type LevelSwitch = app.LevelSwitch

// NewLevelSwitch creates a switch holding level.
func NewLevelSwitch(level Level) *LevelSwitch {
	return app.NewLevelSwitch(level)
}

// Stats is a snapshot of a sink's diagnostic counters.
type Stats = domain.Stats

// Record is a structured event rendered by the sink's Formatter.
type Record = clef.Record

// Formatter renders a Record as one payload fragment.
type Formatter = clef.Formatter

// AuditError reports that the server did not accept an audit event.
type AuditError = domain.AuditError

// Errors returned by the sink.
var (
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrLevelConflict   = domain.ErrLevelConflict
	ErrClosed          = domain.ErrClosed
	ErrBufferLocked    = domain.ErrBufferLocked
	ErrEventTooLarge   = domain.ErrEventTooLarge
	ErrNotDurable      = domain.ErrNotDurable
)

// State represents the lifecycle state of a sink.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	return app.State(s).String()
}

func convertState(s app.State) State {
	return State(s)
}

// EventHandler receives notifications about sink operations.
// Methods are called synchronously from the shipping goroutine.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnSendSuccess(SendSuccessEvent)
	OnSendError(SendErrorEvent)
}

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SendSuccessEvent describes an accepted request.
type SendSuccessEvent struct {
	EventCount int
	BytesSent  int
	Duration   time.Duration
}

// SendErrorEvent describes a request that the server did not accept.
type SendErrorEvent struct {
	Error      error
	EventCount int
	Retryable  bool
}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnSendSuccess(eventCount, bytesSent int, duration time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnSendSuccess(SendSuccessEvent{
		EventCount: eventCount,
		BytesSent:  bytesSent,
		Duration:   duration,
	})
}

func (e *eventEmitterWrapper) OnSendError(err error, eventCount int, retryable bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnSendError(SendErrorEvent{
		Error:      err,
		EventCount: eventCount,
		Retryable:  retryable,
	})
}
