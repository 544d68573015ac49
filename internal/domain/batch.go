package domain

import "bytes"

// Batch is an ordered group of events shipped in one request.
// Events keep insertion order; a batch is never reordered or deduplicated.
type Batch struct {
	Events []Event

	// TotalBytes is the sum of all payload lengths
	TotalBytes int
}

// NewBatch creates a new empty batch.
func NewBatch() *Batch {
	return &Batch{Events: make([]Event, 0)}
}

// Add appends an event to the batch.
func (b *Batch) Add(ev Event) {
	b.Events = append(b.Events, ev)
	b.TotalBytes += ev.Size()
}

// Size returns the number of events in the batch.
func (b *Batch) Size() int {
	return len(b.Events)
}

// Empty returns true if the batch has no events.
func (b *Batch) Empty() bool {
	return len(b.Events) == 0
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.Events = b.Events[:0]
	b.TotalBytes = 0
}

// Without returns a new batch holding every event whose index is not in drop.
func (b *Batch) Without(drop map[int]bool) *Batch {
	out := NewBatch()
	for i, ev := range b.Events {
		if !drop[i] {
			out.Add(ev)
		}
	}
	return out
}

// Payload returns the request body for the batch: every fragment followed
// by a newline, in batch order.
func (b *Batch) Payload() []byte {
	var buf bytes.Buffer
	buf.Grow(b.TotalBytes + len(b.Events))
	for _, ev := range b.Events {
		buf.Write(ev.Payload)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// SplitPayload splits a newline-delimited payload back into its fragments.
// Blank lines and carriage returns before the newline are dropped.
func SplitPayload(payload []byte) [][]byte {
	var out [][]byte
	for len(payload) > 0 {
		line := payload
		if i := bytes.IndexByte(payload, '\n'); i >= 0 {
			line, payload = payload[:i], payload[i+1:]
		} else {
			payload = nil
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}
