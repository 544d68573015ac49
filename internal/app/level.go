package app

import (
	"sync/atomic"
	"time"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// DefaultAvailabilityRecheck is how long an "ingestion unavailable" signal
// holds before the next batch is allowed through as a probe.
const DefaultAvailabilityRecheck = 30 * time.Second

// LevelSwitch is a thread-safe minimum level cell shared by every consumer
// that needs the live value.
type LevelSwitch struct {
	level atomic.Int32
}

// NewLevelSwitch creates a switch holding level.
func NewLevelSwitch(level domain.Level) *LevelSwitch {
	s := &LevelSwitch{}
	s.level.Store(int32(level))
	return s
}

// Level returns the current minimum level.
func (s *LevelSwitch) Level() domain.Level {
	return domain.Level(s.level.Load())
}

// Set replaces the minimum level.
func (s *LevelSwitch) Set(level domain.Level) {
	s.level.Store(int32(level))
}

// LevelController decides which events enter the pipeline.
//
// A local switch is an operator-owned floor: when present, server level
// directives are ignored. Without one, directives from the server drive the
// server switch, which may be shared with other subsystems.
type LevelController struct {
	local   *LevelSwitch
	server  *LevelSwitch
	initial domain.Level

	recheck          time.Duration
	unavailableUntil atomic.Int64
	now              func() time.Time

	logger ports.Logger
	stats  *Counters
}

// NewLevelController builds a controller. Supplying both switches is a
// configuration error: the server could never adjust the effective level.
func NewLevelController(local, server *LevelSwitch, recheck time.Duration, logger ports.Logger, stats *Counters) (*LevelController, error) {
	if local != nil && server != nil {
		return nil, domain.ErrLevelConflict
	}
	if server == nil && local == nil {
		server = NewLevelSwitch(domain.LevelVerbose)
	}
	if recheck <= 0 {
		recheck = DefaultAvailabilityRecheck
	}
	c := &LevelController{
		local:   local,
		server:  server,
		recheck: recheck,
		now:     time.Now,
		logger:  logger,
		stats:   stats,
	}
	if server != nil {
		c.initial = server.Level()
	}
	return c, nil
}

// EffectiveMinimumLevel returns the level below which events are not shipped.
func (c *LevelController) EffectiveMinimumLevel() domain.Level {
	if c.local != nil {
		return c.local.Level()
	}
	return c.server.Level()
}

// ShouldInclude reports whether the pipeline is currently active.
func (c *LevelController) ShouldInclude() bool {
	until := c.unavailableUntil.Load()
	return until == 0 || c.now().UnixNano() >= until
}

// Allows reports whether level passes the minimum level, ignoring availability.
func (c *LevelController) Allows(level domain.Level) bool {
	return level >= c.EffectiveMinimumLevel()
}

// Includes reports whether an event at level should be enqueued now.
func (c *LevelController) Includes(level domain.Level) bool {
	return c.ShouldInclude() && c.Allows(level)
}

// OnServerResponse applies the signals carried by one response.
// Absent signals leave the previous state unchanged.
func (c *LevelController) OnServerResponse(directive *domain.LevelDirective, available *bool) {
	if directive != nil {
		c.applyDirective(directive)
	}
	if available != nil {
		if *available {
			c.unavailableUntil.Store(0)
		} else {
			c.unavailableUntil.Store(c.now().Add(c.recheck).UnixNano())
			c.logger.Warn("ingestion unavailable, pausing shipping",
				ports.Duration("recheck", c.recheck))
		}
	}
}

// Apply feeds an outcome's signals to the controller regardless of its kind.
func (c *LevelController) Apply(out domain.Outcome) {
	c.OnServerResponse(out.Directive, out.Available)
}

func (c *LevelController) applyDirective(d *domain.LevelDirective) {
	if c.local != nil {
		if c.stats != nil {
			c.stats.DirectivesIgnored.Add(1)
		}
		c.logger.Debug("ignoring server level directive, local minimum level is set")
		return
	}
	next := c.initial
	if d.Level != nil {
		next = *d.Level
	}
	if prev := c.server.Level(); prev != next {
		c.server.Set(next)
		c.logger.Info("minimum level changed by server",
			ports.String("from", prev.String()),
			ports.String("to", next.String()))
	}
}
