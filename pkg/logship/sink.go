package logship

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bft-labs/logship/internal/adapters/fs"
	httpAdapter "github.com/bft-labs/logship/internal/adapters/http"
	"github.com/bft-labs/logship/internal/app"
	"github.com/bft-labs/logship/internal/clef"
	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// Mode is the delivery mode of a sink, selected once by New.
type Mode int

const (
	// ModeBatched ships from a bounded in-memory queue. Events are lost
	// when the queue overflows or the server is unreachable.
	ModeBatched Mode = iota

	// ModeDurable ships from append-only files on disk with at-least-once
	// delivery.
	ModeDurable

	// ModeAudit ships each event synchronously and returns the failure.
	ModeAudit
)

func (m Mode) String() string {
	switch m {
	case ModeBatched:
		return "batched"
	case ModeDurable:
		return "durable"
	case ModeAudit:
		return "audit"
	default:
		return "unknown"
	}
}

// Sink ships log events to an ingestion server.
// Use New() to create an instance, then Start() to begin shipping.
// Emit and Write are safe for concurrent use.
type Sink struct {
	config    Config
	opts      options
	mode      Mode
	lifecycle *app.Lifecycle
	levels    *app.LevelController
	stats     *app.Counters
	logger    ports.Logger

	// exactly one is set, according to mode
	batch   *app.BatchQueue
	durable *app.DurableQueue
	audit   *app.AuditPath

	lock ports.BufferLock

	mu     sync.Mutex
	closed bool
}

// New creates a sink with the given configuration.
// The sink is created in StateStopped. Events may be emitted before Start;
// batched and durable sinks hold them until the worker runs.
// In durable mode New takes an exclusive lock on the buffer and fails with
// ErrBufferLocked when another sink owns it.
func New(cfg Config, opts ...Option) (*Sink, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions(&http.Client{Timeout: cfg.HTTPTimeout})
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	emitter := &eventEmitterWrapper{handler: o.eventHandler}
	stats := &app.Counters{}

	levels, err := app.NewLevelController(cfg.MinimumLevel, cfg.ServerLevelSwitch, cfg.AvailabilityRecheck, logger, stats)
	if err != nil {
		return nil, err
	}

	s := &Sink{
		config:    cfg,
		opts:      o,
		lifecycle: app.NewLifecycle(logger, emitter),
		levels:    levels,
		stats:     stats,
		logger:    logger,
	}

	ingester := httpAdapter.NewIngester(o.httpClient, logger)
	meta := ports.PostMetadata{ServerURL: cfg.ServerURL, APIKey: cfg.APIKey}

	switch {
	case cfg.Audit:
		s.mode = ModeAudit
		s.audit = app.NewAuditPath(app.AuditConfig{
			EventBodyLimitBytes: cfg.eventBodyLimit(),
			Metadata:            meta,
		}, ingester, levels, logger, stats)

	case cfg.Durable():
		s.mode = ModeDurable
		if err := s.openDurable(ingester, meta, emitter); err != nil {
			return nil, err
		}

	default:
		s.mode = ModeBatched
		s.batch = app.NewBatchQueue(app.BatchQueueConfig{
			BatchSizeLimit:      cfg.BatchPostingLimit,
			BatchSizeLimitBytes: cfg.BatchSizeLimitBytes,
			Period:              cfg.Period,
			QueueLimit:          cfg.QueueLimit,
			EventBodyLimitBytes: cfg.eventBodyLimit(),
			Metadata:            meta,
		}, ingester, levels, logger, stats, emitter)
	}

	logger.Debug("sink created",
		ports.String("mode", s.mode.String()),
		ports.String("server", cfg.ServerURL),
	)
	return s, nil
}

func (s *Sink) openDurable(ingester ports.Ingester, meta ports.PostMetadata, emitter app.SendEventEmitter) error {
	base := s.config.BufferBaseFilename
	dir, err := fs.NewBufferDir(base)
	if err != nil {
		return fmt.Errorf("create buffer directory: %w", err)
	}
	lock, err := fs.AcquireLock(base)
	if err != nil {
		return err
	}

	var quarantine ports.Quarantine
	if s.config.RetainedInvalidPayloadsLimitBytes > 0 {
		quarantine = fs.NewQuarantine(base, s.config.RetainedInvalidPayloadsLimitBytes)
	}

	q, err := app.NewDurableQueue(app.DurableQueueConfig{
		BaseName:                 dir.Base(),
		BatchPostingLimit:        s.config.BatchPostingLimit,
		BatchSizeLimitBytes:      s.config.BatchSizeLimitBytes,
		Period:                   s.config.Period,
		EventBodyLimitBytes:      s.config.eventBodyLimit(),
		BufferSizeLimitBytes:     s.config.BufferSizeLimitBytes,
		BufferFileSizeLimitBytes: s.config.BufferFileSizeLimitBytes,
		Metadata:                 meta,
	}, dir, fs.NewBookmarkFile(base), quarantine, ingester, s.levels, s.logger, s.stats, emitter)
	if err != nil {
		_ = lock.Release()
		return fmt.Errorf("open buffer: %w", err)
	}

	s.durable = q
	s.lock = lock
	return nil
}

// Mode returns the delivery mode selected by the configuration.
func (s *Sink) Mode() Mode {
	return s.mode
}

// Start begins shipping in the background and returns immediately.
// The provided context bounds the lifetime of the shipping worker.
// Audit sinks have no worker; Start only marks them running.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrClosed
	}
	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.lifecycle.SetCancel(cancel)

	switch s.mode {
	case ModeBatched:
		s.lifecycle.Go(runCtx, "batch queue", s.batch.Run)
	case ModeDurable:
		s.lifecycle.Go(runCtx, "durable shipper", s.durable.Run)
	}

	return s.lifecycle.TransitionTo(app.StateRunning, s.mode.String()+" sink started")
}

// Emit hands a formatted event to the sink. Batched and durable sinks never
// block on the network and return nil unless the sink is closed; events they
// cannot keep are dropped and counted in Stats. Audit sinks return the
// server's refusal as a *AuditError.
func (s *Sink) Emit(ctx context.Context, ev Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return domain.ErrClosed
	}

	switch s.mode {
	case ModeAudit:
		return s.audit.Emit(ctx, ev)
	case ModeDurable:
		s.durable.Enqueue(ev)
	default:
		s.batch.Enqueue(ev)
	}
	return nil
}

// Write formats r with the sink's Formatter and emits it.
func (s *Sink) Write(ctx context.Context, r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	ev, err := clef.Event(s.opts.formatter, r)
	if err != nil {
		return err
	}
	return s.Emit(ctx, ev)
}

// Drain ships the durable buffer until no complete event is left and
// returns the first shipping failure. It returns ErrNotDurable for other
// modes. Drain must not be called while the sink is running.
func (s *Sink) Drain(ctx context.Context) error {
	if s.mode != ModeDurable {
		return domain.ErrNotDurable
	}
	if s.lifecycle.State() == app.StateRunning {
		return domain.ErrAlreadyRunning
	}
	return s.durable.Drain(ctx)
}

// Stop cancels the shipping worker, makes one final delivery attempt
// bounded by ShutdownTimeout and releases the sink's files. A stopped sink
// cannot be restarted. Returns ErrShutdownTimeout if the worker did not
// exit in time; the sink is then Crashed, the final flush is skipped and a
// durable buffer stays locked until the abandoned worker returns.
func (s *Sink) Stop() error {
	s.mu.Lock()
	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lifecycle.Cancel()
	s.closed = true
	s.mu.Unlock()

	deadline := time.Now().Add(s.config.ShutdownTimeout)
	if err := s.lifecycle.WaitWithTimeout(s.config.ShutdownTimeout); err != nil {
		// An abandoned shipper may still commit a bookmark, so the buffer
		// stays locked until it returns.
		go func() {
			s.lifecycle.Wait()
			if err := s.release(); err != nil {
				s.logger.Warn("failed to release buffer", ports.Err(err))
			}
		}()
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
		return err
	}

	s.finalFlush(deadline)
	err := s.release()
	_ = s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	return err
}

// Close stops a running sink, or flushes and releases one that was never
// started. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.lifecycle.CanStop() {
		s.mu.Unlock()
		return s.Stop()
	}
	s.closed = true
	s.mu.Unlock()

	s.finalFlush(time.Now().Add(s.config.ShutdownTimeout))
	return s.release()
}

// finalFlush makes the last delivery attempt before the sink's handles
// are released. Whatever is not delivered by deadline is abandoned; for
// durable sinks it stays on disk for the next run.
func (s *Sink) finalFlush(deadline time.Time) {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	switch s.mode {
	case ModeBatched:
		s.batch.Flush(ctx)
		if n := s.batch.Len(); n > 0 {
			s.logger.Warn("abandoning queued events at shutdown", ports.Int("events", n))
		}
	case ModeDurable:
		if err := s.durable.Drain(ctx); err != nil {
			s.logger.Warn("final delivery incomplete, events remain buffered", ports.Err(err))
		}
	}
}

func (s *Sink) release() error {
	if s.mode != ModeDurable {
		return nil
	}
	err := s.durable.Close()
	if s.lock != nil {
		if lockErr := s.lock.Release(); lockErr != nil && err == nil {
			err = lockErr
		}
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Sink) Status() State {
	return convertState(s.lifecycle.State())
}

// Stats returns a snapshot of the diagnostic counters.
func (s *Sink) Stats() Stats {
	return s.stats.Snapshot()
}

// MinimumLevel returns the level below which events are currently dropped.
func (s *Sink) MinimumLevel() Level {
	return s.levels.EffectiveMinimumLevel()
}
