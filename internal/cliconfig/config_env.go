package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (LOGSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("server-url", os.Getenv("LOGSHIP_SERVER_URL"), &cfg.ServerURL)
	s.setString("api-key", os.Getenv("LOGSHIP_API_KEY"), &cfg.APIKey)
	s.setString("minimum-level", os.Getenv("LOGSHIP_MINIMUM_LEVEL"), &cfg.MinimumLevel)
	s.setString("buffer", os.Getenv("LOGSHIP_BUFFER"), &cfg.BufferBaseFilename)
	s.setString("metrics-addr", os.Getenv("LOGSHIP_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("metrics-file", os.Getenv("LOGSHIP_METRICS_FILE"), &cfg.MetricsFile)
	s.setString("log-level", os.Getenv("LOGSHIP_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("period", os.Getenv("LOGSHIP_PERIOD"), &cfg.Period); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("LOGSHIP_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("LOGSHIP_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("batch-posting-limit", os.Getenv("LOGSHIP_BATCH_POSTING_LIMIT"), &cfg.BatchPostingLimit); err != nil {
		return err
	}
	if err := s.setIntFromString("queue-limit", os.Getenv("LOGSHIP_QUEUE_LIMIT"), &cfg.QueueLimit); err != nil {
		return err
	}

	int64Vars := []struct {
		flag, env string
		dst       *int64
	}{
		{"batch-size-limit", "LOGSHIP_BATCH_SIZE_LIMIT_BYTES", &cfg.BatchSizeLimitBytes},
		{"event-body-limit", "LOGSHIP_EVENT_BODY_LIMIT_BYTES", &cfg.EventBodyLimitBytes},
		{"buffer-size-limit", "LOGSHIP_BUFFER_SIZE_LIMIT_BYTES", &cfg.BufferSizeLimitBytes},
		{"buffer-file-size-limit", "LOGSHIP_BUFFER_FILE_SIZE_LIMIT_BYTES", &cfg.BufferFileSizeLimitBytes},
		{"retained-invalid-limit", "LOGSHIP_RETAINED_INVALID_PAYLOADS_LIMIT_BYTES", &cfg.RetainedInvalidPayloadsLimitBytes},
	}
	for _, v := range int64Vars {
		if err := s.setInt64FromString(v.flag, os.Getenv(v.env), v.dst); err != nil {
			return err
		}
	}

	return nil
}
