package ports

import (
	"context"

	"github.com/bft-labs/logship/internal/domain"
)

// BookmarkRepository handles bookmark persistence for crash recovery.
// Only the shipper goroutine reads and writes the bookmark.
type BookmarkRepository interface {
	// Load retrieves the last saved bookmark.
	// Returns an empty bookmark and nil error if none exists.
	// A corrupt bookmark returns an empty bookmark and an error; callers
	// treat that as "start from the oldest segment".
	Load(ctx context.Context) (domain.Bookmark, error)

	// Save persists the bookmark atomically.
	Save(ctx context.Context, bm domain.Bookmark) error
}
