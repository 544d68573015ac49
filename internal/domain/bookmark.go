package domain

import "time"

// Bookmark is the persisted read cursor of the durable queue.
// It names the next unread byte across the ordered set of segments and is
// only advanced after the server has accepted everything before it.
type Bookmark struct {
	// File is the segment name the cursor points into
	File string `json:"file"`

	// Offset is the byte offset of the next unread event in File
	Offset int64 `json:"offset"`

	// UpdatedAt is the time the bookmark was last advanced
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// IsEmpty returns true if the bookmark has not been initialized.
func (b Bookmark) IsEmpty() bool {
	return b.File == ""
}

// SamePosition reports whether b and o point at the same byte.
func (b Bookmark) SamePosition(o Bookmark) bool {
	return b.File == o.File && b.Offset == o.Offset
}

// Before reports whether b points strictly before o.
// Bookmarks with unparseable file names sort first.
func (b Bookmark) Before(o Bookmark) bool {
	if b.File == o.File {
		return b.Offset < o.Offset
	}
	bDate, bSeq, bok := segmentKey(b.File)
	oDate, oSeq, ook := segmentKey(o.File)
	switch {
	case !bok:
		return ook
	case !ook:
		return false
	}
	return Segment{Date: bDate, Seq: bSeq}.Before(Segment{Date: oDate, Seq: oSeq})
}

// Reconcile clamps a persisted bookmark into the valid range of the current
// segments. segs must be sorted. It never fails:
//   - no segments: the zero bookmark
//   - file present: offset clamped into [0, length]
//   - file missing: the first segment sorting after it, at offset 0,
//     or the first segment when none does
func Reconcile(segs []Segment, bm Bookmark) Bookmark {
	if len(segs) == 0 {
		return Bookmark{}
	}
	for _, s := range segs {
		if s.Name != bm.File {
			continue
		}
		out := bm
		if out.Offset < 0 {
			out.Offset = 0
		}
		if out.Offset > s.Length {
			out.Offset = s.Length
		}
		return out
	}
	if date, seq, ok := segmentKey(bm.File); ok {
		missing := Segment{Date: date, Seq: seq}
		for _, s := range segs {
			if missing.Before(s) {
				return Bookmark{File: s.Name}
			}
		}
	}
	return Bookmark{File: segs[0].Name}
}
