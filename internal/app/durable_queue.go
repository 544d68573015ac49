package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// Quarantine reasons.
const (
	ReasonOversize  = "oversize"
	ReasonMalformed = "malformed"
	ReasonRejected  = "rejected"
)

// DurableQueueConfig contains configuration for the disk-backed queue.
type DurableQueueConfig struct {
	// BaseName prefixes every segment file name
	BaseName string

	// BatchPostingLimit is the maximum number of events per request
	BatchPostingLimit int

	// BatchSizeLimitBytes optionally bounds the payload bytes per request
	BatchSizeLimitBytes int64

	// Period is how long the shipper sleeps when the buffer is drained
	Period time.Duration

	// EventBodyLimitBytes quarantines larger events; zero means unlimited
	EventBodyLimitBytes int64

	// BufferSizeLimitBytes bounds the bytes written per day; zero means unlimited
	BufferSizeLimitBytes int64

	// BufferFileSizeLimitBytes rolls to a new segment once the active one
	// reaches it; zero disables size-based rolling
	BufferFileSizeLimitBytes int64

	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Metadata ports.PostMetadata

	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

// DurableQueue ships events through append-only segment files.
//
// Producers append under a short mutex. A single shipper reads from the
// persisted bookmark, posts and advances the bookmark only after the server
// accepted the batch. A crash between acceptance and the bookmark write
// re-ships that batch on restart: delivery is at-least-once.
type DurableQueue struct {
	config     DurableQueueConfig
	fs         ports.BufferFS
	bookmarks  ports.BookmarkRepository
	quarantine ports.Quarantine
	ingester   ports.Ingester
	levels     *LevelController
	logger     ports.Logger
	stats      *Counters
	emitter    SendEventEmitter

	// writer side, guarded by mu
	mu         sync.Mutex
	closed     bool
	writer     io.WriteCloser
	active     string
	activeDate string
	activeSeq  int
	activeSize int64
	dayBytes   int64
	signal     chan struct{}

	// shipper side, guarded by shipMu
	shipMu       sync.Mutex
	loaded       bool
	bookmark     domain.Bookmark
	isolating    bool
	isolateUntil domain.Bookmark
	backoff      *backoff

	// rejectedAt holds positions already quarantined by an earlier post of
	// the uncommitted batch
	rejectedAt map[position]bool
}

type position struct {
	file   string
	offset int64
}

func positionOf(b domain.Bookmark) position {
	return position{file: b.File, offset: b.Offset}
}

// NewDurableQueue creates the queue and opens a fresh active segment.
// Existing segments are never appended to.
func NewDurableQueue(
	config DurableQueueConfig,
	fs ports.BufferFS,
	bookmarks ports.BookmarkRepository,
	quarantine ports.Quarantine,
	ingester ports.Ingester,
	levels *LevelController,
	logger ports.Logger,
	stats *Counters,
	emitter SendEventEmitter,
) (*DurableQueue, error) {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = DefaultBackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = DefaultBackoffMax
	}

	q := &DurableQueue{
		config:     config,
		fs:         fs,
		bookmarks:  bookmarks,
		quarantine: quarantine,
		ingester:   ingester,
		levels:     levels,
		logger:     logger,
		stats:      stats,
		emitter:    emitter,
		signal:     make(chan struct{}, 1),
		backoff:    newBackoff(config.BackoffInitial, config.BackoffMax),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.startDay(config.Now().Format(domain.SegmentDateLayout)); err != nil {
		return nil, err
	}
	return q, nil
}

// Enqueue appends an event to the active segment without waiting for the
// shipper. Filtered events and events over the daily limit are dropped.
func (q *DurableQueue) Enqueue(ev domain.Event) {
	if !q.levels.Includes(ev.Level) {
		q.stats.Filtered.Add(1)
		return
	}

	line := make([]byte, len(ev.Payload)+1)
	copy(line, ev.Payload)
	line[len(ev.Payload)] = '\n'

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.stats.DroppedFailed.Add(1)
		return
	}
	if err := q.rollLocked(); err != nil {
		q.mu.Unlock()
		q.stats.DroppedFailed.Add(1)
		q.logger.Error("failed to open buffer segment", ports.Err(err))
		return
	}
	if q.config.BufferSizeLimitBytes > 0 && q.dayBytes >= q.config.BufferSizeLimitBytes {
		q.mu.Unlock()
		q.stats.DroppedOverflow.Add(1)
		return
	}
	n, err := q.writer.Write(line)
	q.activeSize += int64(n)
	q.dayBytes += int64(n)
	q.mu.Unlock()

	if err != nil {
		q.stats.DroppedFailed.Add(1)
		q.logger.Error("failed to append to buffer", ports.Err(err))
		return
	}
	q.stats.Enqueued.Add(1)

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// rollLocked moves to a new segment on day change or when the active one
// is full. Callers hold mu.
func (q *DurableQueue) rollLocked() error {
	date := q.config.Now().Format(domain.SegmentDateLayout)
	if date != q.activeDate {
		return q.startDay(date)
	}
	if q.config.BufferFileSizeLimitBytes > 0 && q.activeSize >= q.config.BufferFileSizeLimitBytes {
		return q.openSegment(date, q.activeSeq+1)
	}
	return nil
}

// startDay recomputes the day footprint from disk and opens the next
// segment for date. Callers hold mu.
func (q *DurableQueue) startDay(date string) error {
	segs, err := q.fs.List()
	if err != nil {
		return fmt.Errorf("list buffer: %w", err)
	}
	seq := 0
	q.dayBytes = 0
	for _, s := range segs {
		if s.Date != date {
			continue
		}
		q.dayBytes += s.Length
		if s.Seq >= seq {
			seq = s.Seq + 1
		}
	}
	return q.openSegment(date, seq)
}

// openSegment closes the current writer and creates a new segment.
// Callers hold mu.
func (q *DurableQueue) openSegment(date string, seq int) error {
	if q.writer != nil {
		if err := q.writer.Close(); err != nil {
			q.logger.Warn("failed to close buffer segment",
				ports.String("file", q.active), ports.Err(err))
		}
		q.writer = nil
	}
	name := domain.SegmentName(q.config.BaseName, date, seq)
	w, err := q.fs.Create(name)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", name, err)
	}
	q.writer = w
	q.active = name
	q.activeDate = date
	q.activeSeq = seq
	q.activeSize = 0
	q.logger.Debug("opened buffer segment", ports.String("file", name))
	return nil
}

func (q *DurableQueue) activeSegment() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Run ships until ctx is canceled, sleeping for Period or until the next
// append when the buffer is drained and backing off after failures.
func (q *DurableQueue) Run(ctx context.Context) error {
	for {
		more, err := q.Tick(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if !errors.Is(err, domain.ErrTransient) {
				q.logger.Error("durable shipping failed", ports.Err(err))
			}
			if err := q.backoff.Wait(ctx); err != nil {
				return err
			}
			continue
		}
		q.backoff.Reset()
		if more {
			continue
		}

		timer := time.NewTimer(q.config.Period)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-q.signal:
			timer.Stop()
		}
	}
}

// Drain ships until no complete event is left to read. It stops at the
// first failure, leaving the bookmark at the last accepted position.
func (q *DurableQueue) Drain(ctx context.Context) error {
	for {
		more, err := q.Tick(ctx)
		if err != nil {
			return err
		}
		if !more {
			return ctx.Err()
		}
	}
}

// Close stops accepting events and closes the active segment.
func (q *DurableQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if q.writer == nil {
		return nil
	}
	err := q.writer.Close()
	q.writer = nil
	return err
}

// Bookmark returns the shipper's current position.
func (q *DurableQueue) Bookmark() domain.Bookmark {
	q.shipMu.Lock()
	defer q.shipMu.Unlock()
	return q.bookmark
}

// Tick reads one batch from the bookmark and ships it. more reports whether
// the next tick may find work without waiting.
func (q *DurableQueue) Tick(ctx context.Context) (more bool, err error) {
	q.shipMu.Lock()
	defer q.shipMu.Unlock()

	segs, err := q.fs.List()
	if err != nil {
		return false, fmt.Errorf("list buffer: %w", err)
	}

	if !q.loaded {
		bm, err := q.bookmarks.Load(ctx)
		if err != nil {
			q.logger.Warn("bookmark unreadable, shipping from the oldest segment", ports.Err(err))
			bm = domain.Bookmark{}
		}
		q.loaded = true
		q.bookmark = domain.Reconcile(segs, bm)
		if !bm.IsEmpty() && !bm.SamePosition(q.bookmark) {
			q.logger.Warn("bookmark clamped to buffer contents",
				ports.String("file", bm.File),
				ports.Int64("offset", bm.Offset),
				ports.String("resume_file", q.bookmark.File),
				ports.Int64("resume_offset", q.bookmark.Offset))
		}
		q.removeConsumed(segs)
	} else {
		q.bookmark = domain.Reconcile(segs, q.bookmark)
	}

	if len(segs) == 0 || !q.levels.ShouldInclude() {
		return false, nil
	}

	res, err := q.read(segs)
	if err != nil {
		return false, err
	}
	if res.batch.Empty() {
		if !res.end.SamePosition(q.bookmark) {
			q.commit(ctx, res.end, segs)
		}
		return false, nil
	}
	return q.ship(ctx, res, segs)
}

// ship posts res and advances the bookmark according to the outcome.
func (q *DurableQueue) ship(ctx context.Context, res *readResult, segs []domain.Segment) (bool, error) {
	batch, starts := q.skipRejected(res.batch, res.starts)
	if batch.Empty() {
		q.commit(ctx, res.end, segs)
		return true, nil
	}
	for {
		start := time.Now()
		out := q.ingester.Post(ctx, batch, q.config.Metadata)
		duration := time.Since(start)
		q.levels.Apply(out)

		switch out.Kind {
		case domain.OutcomeAccepted:
			rejected := validIndexes(out, batch)
			for i := range rejected {
				q.retain(ReasonRejected, batch.Events[i].Payload)
			}
			q.stats.ShippedBatches.Add(1)
			q.stats.ShippedEvents.Add(uint64(batch.Size() - len(rejected)))
			q.stats.RejectedEvents.Add(uint64(len(rejected)))
			q.logger.Debug("sent batch",
				ports.Int("events", batch.Size()),
				ports.Int("bytes", batch.TotalBytes),
				ports.Duration("duration", duration))
			emitSuccess(q.emitter, batch.Size(), batch.TotalBytes, duration)
			q.commit(ctx, res.end, segs)
			return true, nil

		case domain.OutcomeTransient:
			q.stats.TransientFailures.Add(1)
			q.logger.Warn("send failed, will retry",
				ports.Err(out.Err),
				ports.Int("events", batch.Size()),
				ports.Duration("backoff", q.backoff.Current()))
			emitError(q.emitter, out.Err, batch.Size(), true)
			if !res.starts[0].SamePosition(q.bookmark) {
				q.commit(ctx, res.starts[0], segs)
			}
			return false, fmt.Errorf("%w: %v", domain.ErrTransient, out.Err)
		}

		emitError(q.emitter, out.Err, batch.Size(), false)
		rejected := validIndexes(out, batch)
		if len(rejected) > 0 && len(rejected) < batch.Size() {
			if q.rejectedAt == nil {
				q.rejectedAt = make(map[position]bool)
			}
			for i := range rejected {
				q.retain(ReasonRejected, batch.Events[i].Payload)
				q.rejectedAt[positionOf(starts[i])] = true
			}
			q.stats.RejectedEvents.Add(uint64(len(rejected)))
			q.logger.Warn("server rejected events, resending the rest",
				ports.Int("rejected", len(rejected)),
				ports.Int("events", batch.Size()))
			batch = batch.Without(rejected)
			starts = withoutStarts(starts, rejected)
			continue
		}

		if batch.Size() == 1 || len(rejected) == batch.Size() {
			for _, ev := range batch.Events {
				q.retain(ReasonRejected, ev.Payload)
			}
			q.stats.RejectedEvents.Add(uint64(batch.Size()))
			q.logger.Error("server rejected batch, skipping",
				ports.Err(out.Err),
				ports.Int("status", out.StatusCode),
				ports.Int("events", batch.Size()))
			q.commit(ctx, res.end, segs)
			return true, nil
		}

		q.isolating = true
		q.isolateUntil = res.end
		q.logger.Warn("server rejected batch, resending events one at a time",
			ports.Err(out.Err),
			ports.Int("status", out.StatusCode),
			ports.Int("events", batch.Size()))
		return true, nil
	}
}

// commit persists pos and deletes segments it has moved past.
// A failed write keeps pos in memory only, so a restart re-ships from the
// last persisted position.
func (q *DurableQueue) commit(ctx context.Context, pos domain.Bookmark, segs []domain.Segment) {
	pos.UpdatedAt = q.config.Now().UTC()
	q.bookmark = pos
	if q.isolating && !pos.Before(q.isolateUntil) {
		q.isolating = false
		q.logger.Info("left isolation mode", ports.String("file", pos.File))
	}
	for p := range q.rejectedAt {
		if (domain.Bookmark{File: p.file, Offset: p.offset}).Before(pos) {
			delete(q.rejectedAt, p)
		}
	}
	if err := q.bookmarks.Save(ctx, pos); err != nil {
		q.logger.Error("failed to persist bookmark", ports.Err(err))
		return
	}
	q.removeConsumed(segs)
}

// removeConsumed deletes every segment before the bookmark except the
// active write file.
func (q *DurableQueue) removeConsumed(segs []domain.Segment) {
	if q.bookmark.IsEmpty() {
		return
	}
	active := q.activeSegment()
	for _, s := range segs {
		if s.Name == q.bookmark.File {
			return
		}
		if s.Name == active || !(domain.Bookmark{File: s.Name}).Before(q.bookmark) {
			continue
		}
		if err := q.fs.Remove(s.Name); err != nil {
			q.logger.Warn("failed to remove shipped segment",
				ports.String("file", s.Name), ports.Err(err))
			continue
		}
		q.logger.Debug("removed shipped segment", ports.String("file", s.Name))

		q.mu.Lock()
		if s.Date == q.activeDate {
			q.dayBytes -= s.Length
			if q.dayBytes < 0 {
				q.dayBytes = 0
			}
		}
		q.mu.Unlock()
	}
}

// skipRejected drops events the server already refused during an earlier
// post of the same range.
func (q *DurableQueue) skipRejected(batch *domain.Batch, starts []domain.Bookmark) (*domain.Batch, []domain.Bookmark) {
	if len(q.rejectedAt) == 0 {
		return batch, starts
	}
	drop := make(map[int]bool)
	for i, s := range starts {
		if q.rejectedAt[positionOf(s)] {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return batch, starts
	}
	return batch.Without(drop), withoutStarts(starts, drop)
}

func withoutStarts(starts []domain.Bookmark, drop map[int]bool) []domain.Bookmark {
	out := make([]domain.Bookmark, 0, len(starts))
	for i, s := range starts {
		if !drop[i] {
			out = append(out, s)
		}
	}
	return out
}

// retain hands payload to the quarantine, never failing the caller.
func (q *DurableQueue) retain(reason string, payload []byte) {
	if q.quarantine == nil {
		q.logger.Warn("discarding invalid payload",
			ports.String("reason", reason), ports.Int("bytes", len(payload)))
		return
	}
	ok, err := q.quarantine.Retain(reason, payload)
	switch {
	case err != nil:
		q.logger.Error("failed to retain invalid payload",
			ports.String("reason", reason), ports.Err(err))
	case !ok:
		q.stats.QuarantineRefused.Add(1)
		q.logger.Warn("invalid payload retention limit reached, discarding payload",
			ports.String("reason", reason), ports.Int("bytes", len(payload)))
	default:
		q.stats.Quarantined.Add(1)
	}
}

// validIndexes returns the rejected indexes that exist in batch.
func validIndexes(out domain.Outcome, batch *domain.Batch) map[int]bool {
	idx := make(map[int]bool, len(out.Rejected))
	for _, r := range out.Rejected {
		if r.Index >= 0 && r.Index < batch.Size() {
			idx[r.Index] = true
		}
	}
	return idx
}
