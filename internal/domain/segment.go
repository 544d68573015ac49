package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SegmentExt is the extension of every buffer file.
const SegmentExt = ".clef"

// SegmentDateLayout is the time layout of the date discriminator.
const SegmentDateLayout = "20060102"

// Segment describes one buffer file of the durable queue.
// A segment is append-only while it is the active write file and read-only
// once a later segment exists.
type Segment struct {
	// Name is the file name relative to the buffer directory
	// (e.g., "buffer-20261019_000.clef")
	Name string

	// Date is the rotation day in YYYYMMDD form
	Date string

	// Seq breaks ties between segments that share a date
	Seq int

	// Length is the file size in bytes when it was listed
	Length int64
}

// SegmentName returns the deterministic file name for a segment.
func SegmentName(base, date string, seq int) string {
	return fmt.Sprintf("%s-%s_%03d%s", base, date, seq, SegmentExt)
}

// ParseSegmentName parses a file name produced by SegmentName for base.
// Names belonging to other bases or to quarantine files are rejected.
func ParseSegmentName(base, name string) (Segment, bool) {
	if !strings.HasPrefix(name, base+"-") {
		return Segment{}, false
	}
	date, seq, ok := segmentKey(name)
	if !ok || name != SegmentName(base, date, seq) {
		return Segment{}, false
	}
	return Segment{Name: name, Date: date, Seq: seq}, true
}

// segmentKey extracts the ordering key from a segment name without
// knowing its base.
func segmentKey(name string) (string, int, bool) {
	stem, ok := strings.CutSuffix(name, SegmentExt)
	if !ok {
		return "", 0, false
	}
	dash := strings.LastIndexByte(stem, '-')
	if dash < 0 {
		return "", 0, false
	}
	date, seqText, ok := strings.Cut(stem[dash+1:], "_")
	if !ok || len(date) != len(SegmentDateLayout) {
		return "", 0, false
	}
	for _, c := range date {
		if c < '0' || c > '9' {
			return "", 0, false
		}
	}
	seq, err := strconv.Atoi(seqText)
	if err != nil || seq < 0 {
		return "", 0, false
	}
	return date, seq, true
}

// Before reports whether s sorts before o in buffer order.
func (s Segment) Before(o Segment) bool {
	if s.Date != o.Date {
		return s.Date < o.Date
	}
	return s.Seq < o.Seq
}

// SortSegments orders segments by date, then sequence.
func SortSegments(segs []Segment) {
	sort.Slice(segs, func(i, j int) bool { return segs[i].Before(segs[j]) })
}
