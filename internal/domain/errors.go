package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the logship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running sink.
	ErrAlreadyRunning = errors.New("logship: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped sink.
	ErrNotRunning = errors.New("logship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("logship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("logship: invalid configuration")

	// ErrLevelConflict is returned when both a local level switch and a
	// server-controlled level switch are supplied.
	ErrLevelConflict = errors.New("logship: local minimum level and server level switch are mutually exclusive")

	// ErrClosed is returned when events are written to a closed sink.
	ErrClosed = errors.New("logship: sink is closed")

	// ErrBufferLocked is returned when another queue owns the buffer files.
	ErrBufferLocked = errors.New("logship: buffer is locked by another process")

	// ErrEventTooLarge is returned by the audit path for events above the body limit.
	ErrEventTooLarge = errors.New("logship: event exceeds body limit")

	// ErrTransient wraps retryable shipping failures.
	ErrTransient = errors.New("logship: transient shipping failure")

	// ErrNotDurable is returned by operations that need a disk buffer.
	ErrNotDurable = errors.New("logship: sink is not durable")
)

// AuditError reports that the server did not accept an audit event.
type AuditError struct {
	Outcome Outcome
}

func (e *AuditError) Error() string {
	if len(e.Outcome.Rejected) > 0 {
		return fmt.Sprintf("logship: audit event rejected: %s", e.Outcome.Rejected[0].Reason)
	}
	if e.Outcome.Err != nil {
		return fmt.Sprintf("logship: audit event %s: %v", e.Outcome.Kind, e.Outcome.Err)
	}
	return fmt.Sprintf("logship: audit event %s (status %d)", e.Outcome.Kind, e.Outcome.StatusCode)
}

func (e *AuditError) Unwrap() error {
	return e.Outcome.Err
}

// Transient reports whether retrying the same event could succeed.
func (e *AuditError) Transient() bool {
	return e.Outcome.Kind == OutcomeTransient
}
