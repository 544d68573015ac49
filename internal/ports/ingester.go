package ports

import (
	"context"

	"github.com/bft-labs/logship/internal/domain"
)

// Ingester transmits event batches to the ingestion service.
// Implementations perform exactly one request per call and never retry.
type Ingester interface {
	// Post sends the batch and classifies the response.
	// Failures are reported through the returned Outcome, never by panicking.
	Post(ctx context.Context, batch *domain.Batch, metadata PostMetadata) domain.Outcome
}

// PostMetadata provides context for the post operation.
type PostMetadata struct {
	// ServerURL is the base URL of the ingestion service
	ServerURL string

	// APIKey is attached as a request header when not empty
	APIKey string
}
