package domain

// Event is a single formatted log event.
// Payload holds one formatted fragment without the trailing newline;
// newline framing is added when events are written to a batch or buffer file.
type Event struct {
	Payload []byte
	Level   Level
}

// NewEvent copies payload so the event does not alias caller memory.
func NewEvent(payload []byte, level Level) Event {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Event{Payload: p, Level: level}
}

// Size returns the logical size of the event in bytes.
func (e Event) Size() int {
	return len(e.Payload)
}
