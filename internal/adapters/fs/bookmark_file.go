package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/logship/internal/domain"
)

// BookmarkFile implements ports.BookmarkRepository using a JSON file
// beside the buffer segments.
type BookmarkFile struct {
	path string
}

// NewBookmarkFile creates a repository storing the bookmark of the buffer
// with the given base path (e.g., "/var/lib/app/logs/buffer").
func NewBookmarkFile(basePath string) *BookmarkFile {
	return &BookmarkFile{path: basePath + ".bookmark"}
}

// Load retrieves the last saved bookmark.
// Returns an empty bookmark and nil error if no bookmark exists yet.
func (r *BookmarkFile) Load(ctx context.Context) (domain.Bookmark, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Bookmark{}, nil
		}
		return domain.Bookmark{}, err
	}

	var bm domain.Bookmark
	if err := json.Unmarshal(data, &bm); err != nil {
		return domain.Bookmark{}, fmt.Errorf("decode bookmark %s: %w", r.path, err)
	}
	return bm, nil
}

// Save persists the bookmark atomically: write to a temp file, then rename.
func (r *BookmarkFile) Save(ctx context.Context, bm domain.Bookmark) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return err
	}

	data, err := json.Marshal(bm)
	if err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// Path returns the full path to the bookmark file.
func (r *BookmarkFile) Path() string {
	return r.path
}
