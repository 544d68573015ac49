package fs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/bft-labs/logship/internal/domain"
)

// BufferDir implements ports.BufferFS on a directory of segment files
// sharing one base name.
type BufferDir struct {
	dir  string
	base string
}

// NewBufferDir creates the buffer for basePath, creating its directory.
// Segments are named "<base>-YYYYMMDD_NNN.clef".
func NewBufferDir(basePath string) (*BufferDir, error) {
	dir := filepath.Dir(basePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &BufferDir{dir: dir, base: filepath.Base(basePath)}, nil
}

// Base returns the base name of every segment.
func (b *BufferDir) Base() string {
	return b.base
}

// Dir returns the directory holding the segments.
func (b *BufferDir) Dir() string {
	return b.dir
}

// List returns the buffer's segments sorted by date then sequence.
func (b *BufferDir) List() ([]domain.Segment, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var segs []domain.Segment
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		seg, ok := domain.ParseSegmentName(b.base, e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		seg.Length = info.Size()
		segs = append(segs, seg)
	}
	domain.SortSegments(segs)
	return segs, nil
}

// Open opens a segment for reading.
func (b *BufferDir) Open(name string) (io.ReadSeekCloser, error) {
	return os.Open(filepath.Join(b.dir, name))
}

// Create creates a new segment opened for appending.
func (b *BufferDir) Create(name string) (io.WriteCloser, error) {
	return os.OpenFile(filepath.Join(b.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o600)
}

// Remove deletes a segment.
func (b *BufferDir) Remove(name string) error {
	return os.Remove(filepath.Join(b.dir, name))
}
