package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/logship/internal/domain"
)

// DefaultServerURL is the default ingestion endpoint.
const DefaultServerURL = "http://localhost:5341"

// Config holds CLI configuration for logship.
type Config struct {
	ServerURL string
	APIKey    string

	// MinimumLevel is the local floor; empty lets the server decide
	MinimumLevel string

	BatchPostingLimit   int
	BatchSizeLimitBytes int64
	Period              time.Duration
	QueueLimit          int
	EventBodyLimitBytes int64

	// BufferBaseFilename enables the durable queue when set
	BufferBaseFilename                string
	BufferSizeLimitBytes              int64
	BufferFileSizeLimitBytes          int64
	RetainedInvalidPayloadsLimitBytes int64

	HTTPTimeout     time.Duration
	ShutdownTimeout time.Duration

	MetricsAddr string
	MetricsFile string

	// LogLevel is the level of logship's own diagnostics
	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ServerURL:           DefaultServerURL,
		BatchPostingLimit:   1000,
		Period:              2 * time.Second,
		QueueLimit:          100000,
		EventBodyLimitBytes: 256 * 1024,
		HTTPTimeout:         30 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		LogLevel:            "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if c.ServerURL == "" {
		return fmt.Errorf("server-url is required")
	}
	if c.MinimumLevel != "" {
		if _, err := domain.ParseLevel(c.MinimumLevel); err != nil {
			return fmt.Errorf("minimum-level: %w", err)
		}
	}
	if c.BatchPostingLimit <= 0 {
		return fmt.Errorf("batch posting limit must be positive")
	}
	if c.Period <= 0 {
		return fmt.Errorf("period must be positive")
	}
	if c.QueueLimit <= 0 {
		return fmt.Errorf("queue limit must be positive")
	}
	if c.BufferSizeLimitBytes < 0 || c.BufferFileSizeLimitBytes < 0 || c.RetainedInvalidPayloadsLimitBytes < 0 {
		return fmt.Errorf("buffer limits must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	return nil
}

// Level returns the parsed minimum level, or nil when the server decides.
func (c *Config) Level() *domain.Level {
	if c.MinimumLevel == "" {
		return nil
	}
	l, err := domain.ParseLevel(c.MinimumLevel)
	if err != nil {
		return nil
	}
	return &l
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets a byte count if not zero and flag not changed.
// Negative values are kept so Validate can reject them.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a byte count from an environment variable.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}
