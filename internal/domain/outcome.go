package domain

// OutcomeKind classifies the result of posting a batch.
type OutcomeKind int

const (
	// OutcomeAccepted means the server took the batch. Individual events may
	// still be listed in Outcome.Rejected (partial rejection).
	OutcomeAccepted OutcomeKind = iota

	// OutcomeRejected is a permanent rejection; the payload must not be
	// retried as-is.
	OutcomeRejected

	// OutcomeTransient is a retryable failure: network error, timeout,
	// 429 or 5xx.
	OutcomeTransient
)

// String returns a human-readable representation of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ItemError identifies one event of a batch the server refused.
type ItemError struct {
	Index  int    `json:"Index"`
	Reason string `json:"Reason"`
}

// LevelDirective is a server-assigned minimum level.
// A nil Level clears any previous assignment.
type LevelDirective struct {
	Level *Level
}

// Outcome is the classified result of one ingestion request.
// Level and availability signals are carried for every kind, so a rejected
// batch can still deliver a fresh level directive.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int

	// Rejected lists refused events by batch index
	Rejected []ItemError

	// Directive is nil when the response carried no level signal
	Directive *LevelDirective

	// Available is nil when the response carried no availability signal
	Available *bool

	// Err describes the failure for rejected and transient outcomes
	Err error
}

// Accepted returns true if the server took the batch.
func (o Outcome) Accepted() bool {
	return o.Kind == OutcomeAccepted
}

// RejectedIndexes returns the set of rejected batch indexes.
func (o Outcome) RejectedIndexes() map[int]bool {
	out := make(map[int]bool, len(o.Rejected))
	for _, r := range o.Rejected {
		out[r.Index] = true
	}
	return out
}
