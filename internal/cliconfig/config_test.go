package cliconfig

import (
	"testing"
	"time"

	"github.com/bft-labs/logship/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("ServerURL = %v, want %v", cfg.ServerURL, DefaultServerURL)
	}
	if cfg.BatchPostingLimit != 1000 {
		t.Errorf("BatchPostingLimit = %v, want 1000", cfg.BatchPostingLimit)
	}
	if cfg.Period != 2*time.Second {
		t.Errorf("Period = %v, want 2s", cfg.Period)
	}
	if cfg.EventBodyLimitBytes != 256*1024 {
		t.Errorf("EventBodyLimitBytes = %v, want 256KiB", cfg.EventBodyLimitBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		modify        func(*Config)
		wantErr       bool
		wantServerURL string
	}{
		{
			name:          "trailing slash trimmed",
			modify:        func(c *Config) { c.ServerURL = "https://seq.example.com/" },
			wantServerURL: "https://seq.example.com",
		},
		{
			name:    "missing server url",
			modify:  func(c *Config) { c.ServerURL = " " },
			wantErr: true,
		},
		{
			name:    "unknown minimum level",
			modify:  func(c *Config) { c.MinimumLevel = "loud" },
			wantErr: true,
		},
		{
			name:    "zero period",
			modify:  func(c *Config) { c.Period = 0 },
			wantErr: true,
		},
		{
			name:    "negative buffer limit",
			modify:  func(c *Config) { c.BufferSizeLimitBytes = -1 },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.LogLevel = "chatty" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantServerURL != "" && cfg.ServerURL != tt.wantServerURL {
				t.Errorf("ServerURL = %v, want %v", cfg.ServerURL, tt.wantServerURL)
			}
		})
	}
}

func TestConfig_Level(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level() != nil {
		t.Error("Level() != nil without a minimum level")
	}

	cfg.MinimumLevel = "wrn"
	if l := cfg.Level(); l == nil || *l != domain.LevelWarning {
		t.Errorf("Level() = %v, want Warning", l)
	}
}

func TestConfigSetter_Int64KeepsNegative(t *testing.T) {
	var dst int64 = 10
	newConfigSetter(nil).setInt64("x", -1, &dst)
	if dst != -1 {
		t.Errorf("dst = %d, want -1 so Validate can reject it", dst)
	}
}
