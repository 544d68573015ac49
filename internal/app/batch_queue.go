package app

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// BatchQueueConfig contains configuration for the in-memory queue.
type BatchQueueConfig struct {
	// BatchSizeLimit is the maximum number of events per request
	BatchSizeLimit int

	// BatchSizeLimitBytes optionally bounds the payload bytes per request
	BatchSizeLimitBytes int64

	// Period is the longest an event waits before a flush is attempted
	Period time.Duration

	// QueueLimit bounds the number of events held in memory
	QueueLimit int

	// EventBodyLimitBytes drops larger events at enqueue; zero means unlimited
	EventBodyLimitBytes int64

	Metadata ports.PostMetadata
}

// BatchQueue is the non-durable shipping mode: a bounded in-memory queue
// drained by a single background worker. It favors availability over
// completeness: overflow and failed batches are dropped, never retried.
type BatchQueue struct {
	config   BatchQueueConfig
	ingester ports.Ingester
	levels   *LevelController
	logger   ports.Logger
	stats    *Counters
	emitter  SendEventEmitter

	mu    sync.Mutex
	queue []domain.Event
	full  chan struct{}
}

// NewBatchQueue creates a queue with the given dependencies.
func NewBatchQueue(
	config BatchQueueConfig,
	ingester ports.Ingester,
	levels *LevelController,
	logger ports.Logger,
	stats *Counters,
	emitter SendEventEmitter,
) *BatchQueue {
	return &BatchQueue{
		config:   config,
		ingester: ingester,
		levels:   levels,
		logger:   logger,
		stats:    stats,
		emitter:  emitter,
		full:     make(chan struct{}, 1),
	}
}

// Enqueue admits an event without blocking. Events below the minimum level,
// events arriving while ingestion is unavailable, oversized events and
// events that find the queue full are dropped and counted.
func (q *BatchQueue) Enqueue(ev domain.Event) {
	if !q.levels.Includes(ev.Level) {
		q.stats.Filtered.Add(1)
		return
	}
	if q.config.EventBodyLimitBytes > 0 && int64(ev.Size()) > q.config.EventBodyLimitBytes {
		q.stats.DroppedOversize.Add(1)
		return
	}

	q.mu.Lock()
	if len(q.queue) >= q.config.QueueLimit {
		q.mu.Unlock()
		q.stats.DroppedOverflow.Add(1)
		return
	}
	q.queue = append(q.queue, ev)
	n := len(q.queue)
	q.mu.Unlock()

	q.stats.Enqueued.Add(1)
	if n >= q.config.BatchSizeLimit {
		select {
		case q.full <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of queued events.
func (q *BatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Run executes the flush loop until ctx is canceled. A flush starts when
// BatchSizeLimit events are queued or Period has elapsed since the last
// flush attempt, whichever comes first.
func (q *BatchQueue) Run(ctx context.Context) error {
	timer := time.NewTimer(q.config.Period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-q.full:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		q.Flush(ctx)
		timer.Reset(q.config.Period)
	}
}

// Flush ships queued events in order until the queue is empty, the
// pipeline is inactive, a transient failure occurs or ctx is done.
func (q *BatchQueue) Flush(ctx context.Context) {
	for ctx.Err() == nil {
		if !q.levels.ShouldInclude() {
			return
		}
		batch := q.take()
		if batch.Empty() {
			return
		}
		if !q.ship(ctx, batch) {
			return
		}
	}
}

// take removes the next contiguous batch from the head of the queue.
func (q *BatchQueue) take() *domain.Batch {
	batch := domain.NewBatch()

	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < len(q.queue) && n < q.config.BatchSizeLimit {
		ev := q.queue[n]
		if q.config.BatchSizeLimitBytes > 0 && !batch.Empty() &&
			int64(batch.TotalBytes+ev.Size()) > q.config.BatchSizeLimitBytes {
			break
		}
		batch.Add(ev)
		n++
	}

	rest := copy(q.queue, q.queue[n:])
	clear(q.queue[rest:])
	q.queue = q.queue[:rest]
	return batch
}

// ship posts one batch. It returns false when flushing should stop until
// the next cadence.
func (q *BatchQueue) ship(ctx context.Context, batch *domain.Batch) bool {
	start := time.Now()
	out := q.ingester.Post(ctx, batch, q.config.Metadata)
	duration := time.Since(start)

	q.levels.Apply(out)

	switch out.Kind {
	case domain.OutcomeAccepted:
		rejected := len(validIndexes(out, batch))
		q.stats.ShippedBatches.Add(1)
		q.stats.ShippedEvents.Add(uint64(batch.Size() - rejected))
		if rejected > 0 {
			q.stats.RejectedEvents.Add(uint64(rejected))
			q.logger.Warn("server rejected events in batch",
				ports.Int("rejected", rejected),
				ports.Int("events", batch.Size()))
		}
		q.logger.Debug("sent batch",
			ports.Int("events", batch.Size()),
			ports.Int("bytes", batch.TotalBytes),
			ports.Duration("duration", duration))
		emitSuccess(q.emitter, batch.Size(), batch.TotalBytes, duration)
		return true

	case domain.OutcomeRejected:
		q.stats.RejectedEvents.Add(uint64(batch.Size()))
		q.logger.Error("server rejected batch, dropping",
			ports.Err(out.Err),
			ports.Int("status", out.StatusCode),
			ports.Int("events", batch.Size()))
		emitError(q.emitter, out.Err, batch.Size(), false)
		return true

	default:
		q.stats.TransientFailures.Add(1)
		q.stats.DroppedFailed.Add(uint64(batch.Size()))
		q.logger.Error("send failed, dropping batch",
			ports.Err(out.Err),
			ports.Int("events", batch.Size()),
			ports.Int("bytes", batch.TotalBytes))
		emitError(q.emitter, out.Err, batch.Size(), true)
		return false
	}
}
