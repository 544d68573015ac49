package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/bft-labs/logship/internal/domain"
)

// readResult is one batch read from the buffer.
type readResult struct {
	batch *domain.Batch

	// starts holds the position of each batched event
	starts []domain.Bookmark

	// end is the position after the last consumed line, including
	// lines skipped as invalid
	end domain.Bookmark
}

// read collects the next batch starting at the bookmark. While isolating
// only one event is read per batch.
func (q *DurableQueue) read(segs []domain.Segment) (*readResult, error) {
	limit := q.config.BatchPostingLimit
	if q.isolating {
		limit = 1
	}
	res := &readResult{batch: domain.NewBatch(), end: q.bookmark}

	first := 0
	for i, s := range segs {
		if s.Name == q.bookmark.File {
			first = i
			break
		}
	}

	active := q.activeSegment()
	for i := first; i < len(segs); i++ {
		seg := segs[i]
		offset := int64(0)
		if seg.Name == q.bookmark.File {
			offset = q.bookmark.Offset
		}
		growing := seg.Name == active || i == len(segs)-1

		stop, err := q.readSegment(seg.Name, offset, growing, limit, res)
		if err != nil {
			return nil, err
		}
		if stop || growing {
			break
		}
		res.end = domain.Bookmark{File: segs[i+1].Name}
	}
	return res, nil
}

// readSegment appends complete lines of one segment to res. stop reports
// that reading must not continue into the next segment.
func (q *DurableQueue) readSegment(name string, offset int64, growing bool, limit int, res *readResult) (stop bool, err error) {
	f, err := q.fs.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return true, fmt.Errorf("open segment %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return true, fmt.Errorf("seek segment %s: %w", name, err)
	}

	br := bufio.NewReader(f)
	pos := offset
	for res.batch.Size() < limit {
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return false, nil
			}
			if growing {
				// a write in progress; retry once it completes
				return true, nil
			}
			q.stats.DroppedMalformed.Add(1)
			q.retain(ReasonMalformed, line)
			res.end = domain.Bookmark{File: name, Offset: pos + int64(len(line))}
			return false, nil
		}
		if err != nil {
			return true, fmt.Errorf("read segment %s: %w", name, err)
		}

		next := pos + int64(len(line))
		body := bytes.TrimSuffix(line[:len(line)-1], []byte{'\r'})

		switch {
		case len(body) == 0:
		case q.config.EventBodyLimitBytes > 0 && int64(len(body)) > q.config.EventBodyLimitBytes:
			q.stats.DroppedOversize.Add(1)
			q.retain(ReasonOversize, body)
		case !json.Valid(body):
			q.stats.DroppedMalformed.Add(1)
			q.retain(ReasonMalformed, body)
		default:
			if q.config.BatchSizeLimitBytes > 0 && !res.batch.Empty() &&
				int64(res.batch.TotalBytes+len(body)) > q.config.BatchSizeLimitBytes {
				return true, nil
			}
			res.starts = append(res.starts, domain.Bookmark{File: name, Offset: pos})
			res.batch.Add(domain.NewEvent(body, domain.LevelInformation))
		}

		pos = next
		res.end = domain.Bookmark{File: name, Offset: pos}
	}
	return true, nil
}
