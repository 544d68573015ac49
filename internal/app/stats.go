package app

import (
	"sync/atomic"

	"github.com/bft-labs/logship/internal/domain"
)

// Counters holds the live diagnostic counters of one sink.
type Counters struct {
	Enqueued          atomic.Uint64
	Filtered          atomic.Uint64
	DroppedOverflow   atomic.Uint64
	DroppedOversize   atomic.Uint64
	DroppedMalformed  atomic.Uint64
	DroppedFailed     atomic.Uint64
	ShippedEvents     atomic.Uint64
	ShippedBatches    atomic.Uint64
	TransientFailures atomic.Uint64
	RejectedEvents    atomic.Uint64
	Quarantined       atomic.Uint64
	QuarantineRefused atomic.Uint64
	DirectivesIgnored atomic.Uint64
}

// Snapshot copies the counters.
func (c *Counters) Snapshot() domain.Stats {
	return domain.Stats{
		Enqueued:          c.Enqueued.Load(),
		Filtered:          c.Filtered.Load(),
		DroppedOverflow:   c.DroppedOverflow.Load(),
		DroppedOversize:   c.DroppedOversize.Load(),
		DroppedMalformed:  c.DroppedMalformed.Load(),
		DroppedFailed:     c.DroppedFailed.Load(),
		ShippedEvents:     c.ShippedEvents.Load(),
		ShippedBatches:    c.ShippedBatches.Load(),
		TransientFailures: c.TransientFailures.Load(),
		RejectedEvents:    c.RejectedEvents.Load(),
		Quarantined:       c.Quarantined.Load(),
		QuarantineRefused: c.QuarantineRefused.Load(),
		DirectivesIgnored: c.DirectivesIgnored.Load(),
	}
}
