package logship

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bft-labs/logship/internal/app"
	"github.com/bft-labs/logship/internal/domain"
)

// Default configuration values.
const (
	DefaultBatchPostingLimit   = 1000
	DefaultPeriod              = 2 * time.Second
	DefaultQueueLimit          = 100000
	DefaultEventBodyLimitBytes = 256 * 1024
	DefaultHTTPTimeout         = 30 * time.Second
	DefaultShutdownTimeout     = app.DefaultShutdownTimeout
)

// UnlimitedEventBody disables the per-event size limit when assigned to
// Config.EventBodyLimitBytes.
const UnlimitedEventBody = -1

// Config holds the configuration for a sink.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// ServerURL is the base URL of the ingestion server (required)
	ServerURL string

	// APIKey is sent with every request when not empty
	APIKey string

	// BatchPostingLimit is the maximum number of events per request
	BatchPostingLimit int

	// BatchSizeLimitBytes optionally bounds the payload bytes per request
	BatchSizeLimitBytes int64

	// Period is the flush interval of the batched sink and the idle
	// interval of the durable shipper
	Period time.Duration

	// QueueLimit bounds the in-memory queue of the batched sink
	QueueLimit int

	// EventBodyLimitBytes drops larger events. Zero selects the default,
	// UnlimitedEventBody disables the check.
	EventBodyLimitBytes int64

	// BufferBaseFilename enables durable mode: segments, bookmark and lock
	// files are created with this path as prefix
	BufferBaseFilename string

	// BufferSizeLimitBytes bounds the bytes buffered per day; zero means unlimited
	BufferSizeLimitBytes int64

	// BufferFileSizeLimitBytes rolls to a new segment at this size; zero
	// rolls only on day change
	BufferFileSizeLimitBytes int64

	// RetainedInvalidPayloadsLimitBytes enables the quarantine of rejected
	// and malformed payloads with this soft limit; zero disables it
	RetainedInvalidPayloadsLimitBytes int64

	// MinimumLevel is an operator-owned level floor. Server level directives
	// are ignored when it is set.
	MinimumLevel *LevelSwitch

	// ServerLevelSwitch is kept in sync with the server's level directives
	// so other subsystems can observe it. Mutually exclusive with MinimumLevel.
	ServerLevelSwitch *LevelSwitch

	// AvailabilityRecheck is how long an "ingestion unavailable" signal
	// pauses the pipeline before the next batch probes the server
	AvailabilityRecheck time.Duration

	// Audit ships every event synchronously and reports failures to the caller
	Audit bool

	// HTTPTimeout bounds each request
	HTTPTimeout time.Duration

	// ShutdownTimeout bounds Stop, including the final flush
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
// ServerURL must still be set.
func DefaultConfig() Config {
	return Config{
		BatchPostingLimit:   DefaultBatchPostingLimit,
		Period:              DefaultPeriod,
		QueueLimit:          DefaultQueueLimit,
		EventBodyLimitBytes: DefaultEventBodyLimitBytes,
		AvailabilityRecheck: app.DefaultAvailabilityRecheck,
		HTTPTimeout:         DefaultHTTPTimeout,
		ShutdownTimeout:     DefaultShutdownTimeout,
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.BatchPostingLimit == 0 {
		c.BatchPostingLimit = d.BatchPostingLimit
	}
	if c.Period == 0 {
		c.Period = d.Period
	}
	if c.QueueLimit == 0 {
		c.QueueLimit = d.QueueLimit
	}
	if c.EventBodyLimitBytes == 0 {
		c.EventBodyLimitBytes = d.EventBodyLimitBytes
	}
	if c.AvailabilityRecheck == 0 {
		c.AvailabilityRecheck = d.AvailabilityRecheck
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
}

// Validate checks the configuration. Every failure wraps ErrInvalidConfig
// except a level conflict, which is reported as ErrLevelConflict.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return invalid("server URL is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("server URL %q must be an absolute http(s) URL", c.ServerURL)
	}

	if c.BatchPostingLimit <= 0 {
		return invalid("batch posting limit must be positive")
	}
	if c.Period <= 0 {
		return invalid("period must be positive")
	}
	if c.QueueLimit <= 0 {
		return invalid("queue limit must be positive")
	}
	if c.EventBodyLimitBytes < UnlimitedEventBody {
		return invalid("event body limit must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return invalid("HTTP timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("shutdown timeout must be positive")
	}
	if c.AvailabilityRecheck < 0 {
		return invalid("availability recheck must not be negative")
	}

	limits := map[string]int64{
		"batch size limit":       c.BatchSizeLimitBytes,
		"buffer size limit":      c.BufferSizeLimitBytes,
		"buffer file size limit": c.BufferFileSizeLimitBytes,
		"retained invalid limit": c.RetainedInvalidPayloadsLimitBytes,
	}
	for name, v := range limits {
		if v < 0 {
			return invalid("%s must not be negative", name)
		}
	}

	if c.Audit && c.BufferBaseFilename != "" {
		return invalid("audit mode cannot use a durable buffer")
	}
	if c.BufferBaseFilename == "" && (c.BufferSizeLimitBytes > 0 || c.BufferFileSizeLimitBytes > 0 || c.RetainedInvalidPayloadsLimitBytes > 0) {
		return invalid("buffer limits require a buffer base filename")
	}

	if c.MinimumLevel != nil && c.ServerLevelSwitch != nil {
		return domain.ErrLevelConflict
	}
	return nil
}

// Durable reports whether the configuration selects the disk buffer.
func (c *Config) Durable() bool {
	return c.BufferBaseFilename != ""
}

// eventBodyLimit converts the public limit into the internal convention
// where zero means unlimited.
func (c *Config) eventBodyLimit() int64 {
	if c.EventBodyLimitBytes == UnlimitedEventBody {
		return 0
	}
	return c.EventBodyLimitBytes
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
