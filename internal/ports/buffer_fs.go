package ports

import (
	"io"

	"github.com/bft-labs/logship/internal/domain"
)

// BufferFS is the file-system capability used by the durable queue.
// All names are segment names relative to the buffer location.
type BufferFS interface {
	// List returns every segment of the buffer, sorted by date then sequence,
	// with Length set to the current file size.
	List() ([]domain.Segment, error)

	// Open opens a segment for reading.
	Open(name string) (io.ReadSeekCloser, error)

	// Create creates a new segment for appending. It fails if the segment exists.
	Create(name string) (io.WriteCloser, error)

	// Remove deletes a segment.
	Remove(name string) error
}

// BufferLock guards exclusive ownership of a buffer.
type BufferLock interface {
	// Release unlocks the buffer and closes the lock handle.
	Release() error
}
