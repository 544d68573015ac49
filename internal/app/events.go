package app

import "time"

// SendEventEmitter is called on send success or failure.
type SendEventEmitter interface {
	OnSendSuccess(eventCount, bytesSent int, duration time.Duration)
	OnSendError(err error, eventCount int, retryable bool)
}

func emitSuccess(e SendEventEmitter, events, bytes int, d time.Duration) {
	if e != nil {
		e.OnSendSuccess(events, bytes, d)
	}
}

func emitError(e SendEventEmitter, err error, events int, retryable bool) {
	if e != nil {
		e.OnSendError(err, events, retryable)
	}
}
