package app

import (
	"context"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// AuditConfig contains configuration for the audit path.
type AuditConfig struct {
	// EventBodyLimitBytes refuses larger events; zero means unlimited
	EventBodyLimitBytes int64

	Metadata ports.PostMetadata
}

// AuditPath ships each event synchronously in its own request and reports
// every non-accepted outcome to the caller. Calls share no failure state.
type AuditPath struct {
	config   AuditConfig
	ingester ports.Ingester
	levels   *LevelController
	logger   ports.Logger
	stats    *Counters
}

// NewAuditPath creates an audit path.
func NewAuditPath(config AuditConfig, ingester ports.Ingester, levels *LevelController, logger ports.Logger, stats *Counters) *AuditPath {
	return &AuditPath{
		config:   config,
		ingester: ingester,
		levels:   levels,
		logger:   logger,
		stats:    stats,
	}
}

// Emit posts ev and waits for the server's answer. Events below the minimum
// level are skipped without error. The returned error is a *domain.AuditError
// unless the event was refused locally.
func (a *AuditPath) Emit(ctx context.Context, ev domain.Event) error {
	if !a.levels.Allows(ev.Level) {
		a.stats.Filtered.Add(1)
		return nil
	}
	if a.config.EventBodyLimitBytes > 0 && int64(ev.Size()) > a.config.EventBodyLimitBytes {
		a.stats.DroppedOversize.Add(1)
		return domain.ErrEventTooLarge
	}
	a.stats.Enqueued.Add(1)

	batch := domain.NewBatch()
	batch.Add(ev)
	out := a.ingester.Post(ctx, batch, a.config.Metadata)
	a.levels.Apply(out)

	switch {
	case out.Kind == domain.OutcomeTransient:
		a.stats.TransientFailures.Add(1)
	case out.Kind == domain.OutcomeRejected || len(validIndexes(out, batch)) > 0:
		a.stats.RejectedEvents.Add(1)
	default:
		a.stats.ShippedEvents.Add(1)
		a.stats.ShippedBatches.Add(1)
		return nil
	}

	a.logger.Debug("audit event not accepted",
		ports.String("outcome", out.Kind.String()),
		ports.Int("status", out.StatusCode))
	return &domain.AuditError{Outcome: out}
}
