package domain

// Stats is a point-in-time snapshot of a sink's diagnostic counters.
type Stats struct {
	Enqueued          uint64
	Filtered          uint64
	DroppedOverflow   uint64
	DroppedOversize   uint64
	DroppedMalformed  uint64
	DroppedFailed     uint64
	ShippedEvents     uint64
	ShippedBatches    uint64
	TransientFailures uint64
	RejectedEvents    uint64
	Quarantined       uint64
	QuarantineRefused uint64
	DirectivesIgnored uint64
}

// Dropped returns every event lost before reaching the server.
func (s Stats) Dropped() uint64 {
	return s.DroppedOverflow + s.DroppedOversize + s.DroppedMalformed + s.DroppedFailed
}
