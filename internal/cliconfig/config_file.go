package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations to make
// TOML and YAML friendly.
type FileConfig struct {
	ServerURL                         string `toml:"server_url" yaml:"server_url"`
	APIKey                            string `toml:"api_key" yaml:"api_key"`
	MinimumLevel                      string `toml:"minimum_level" yaml:"minimum_level"`
	BatchPostingLimit                 int    `toml:"batch_posting_limit" yaml:"batch_posting_limit"`
	BatchSizeLimitBytes               int64  `toml:"batch_size_limit_bytes" yaml:"batch_size_limit_bytes"`
	Period                            string `toml:"period" yaml:"period"`
	QueueLimit                        int    `toml:"queue_limit" yaml:"queue_limit"`
	EventBodyLimitBytes               int64  `toml:"event_body_limit_bytes" yaml:"event_body_limit_bytes"`
	BufferBaseFilename                string `toml:"buffer_base_filename" yaml:"buffer_base_filename"`
	BufferSizeLimitBytes              int64  `toml:"buffer_size_limit_bytes" yaml:"buffer_size_limit_bytes"`
	BufferFileSizeLimitBytes          int64  `toml:"buffer_file_size_limit_bytes" yaml:"buffer_file_size_limit_bytes"`
	RetainedInvalidPayloadsLimitBytes int64  `toml:"retained_invalid_payloads_limit_bytes" yaml:"retained_invalid_payloads_limit_bytes"`
	HTTPTimeout                       string `toml:"http_timeout" yaml:"http_timeout"`
	ShutdownTimeout                   string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	MetricsAddr                       string `toml:"metrics_addr" yaml:"metrics_addr"`
	MetricsFile                       string `toml:"metrics_file" yaml:"metrics_file"`
	LogLevel                          string `toml:"log_level" yaml:"log_level"`
}

// LoadFileConfig reads a config file. Files ending in .yaml or .yml are
// parsed as YAML, anything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.logship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".logship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("server-url", fc.ServerURL, &cfg.ServerURL)
	s.setString("api-key", fc.APIKey, &cfg.APIKey)
	s.setString("minimum-level", fc.MinimumLevel, &cfg.MinimumLevel)
	s.setString("buffer", fc.BufferBaseFilename, &cfg.BufferBaseFilename)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("metrics-file", fc.MetricsFile, &cfg.MetricsFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("period", fc.Period, &cfg.Period); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setInt("batch-posting-limit", fc.BatchPostingLimit, &cfg.BatchPostingLimit)
	s.setInt("queue-limit", fc.QueueLimit, &cfg.QueueLimit)

	s.setInt64("batch-size-limit", fc.BatchSizeLimitBytes, &cfg.BatchSizeLimitBytes)
	s.setInt64("event-body-limit", fc.EventBodyLimitBytes, &cfg.EventBodyLimitBytes)
	s.setInt64("buffer-size-limit", fc.BufferSizeLimitBytes, &cfg.BufferSizeLimitBytes)
	s.setInt64("buffer-file-size-limit", fc.BufferFileSizeLimitBytes, &cfg.BufferFileSizeLimitBytes)
	s.setInt64("retained-invalid-limit", fc.RetainedInvalidPayloadsLimitBytes, &cfg.RetainedInvalidPayloadsLimitBytes)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
