package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/logship/internal/adapters/log"
	"github.com/bft-labs/logship/internal/cliconfig"
	"github.com/bft-labs/logship/internal/ports"
	"github.com/bft-labs/logship/pkg/logship"
)

const longHelp = `Ship structured log events to a Seq-compatible ingestion server.

Events are read as compact JSON (CLEF), one per line; plain text lines are
wrapped as messages. Without --buffer events are batched in memory and may
be dropped when the server is unreachable. With --buffer they are appended
to files on disk and shipped at least once.

Configuration is read from flags, then LOGSHIP_* environment variables, then
the config file (TOML, or YAML by extension).`

var exampleUsage = strings.TrimSpace(`
  tail -F app.log | logship ingest --server-url http://seq:5341 --api-key <key>
  logship ingest events.clef --buffer /var/lib/logship/buffer
  logship emit "Deployed {Version}" --property Version=1.4.2 --level warning
  logship drain --buffer /var/lib/logship/buffer
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the state shared by every subcommand.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  *logAdapter.ZerologAdapter
}

func main() {
	c := &cli{
		cfg:    cliconfig.DefaultConfig(),
		logger: logAdapter.NewZerologAdapter(os.Stderr, zerolog.InfoLevel),
	}

	root := &cobra.Command{
		Use:           "logship",
		Short:         "Ship structured log events to a Seq-compatible server",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	c.bindFlags(root.PersistentFlags())
	root.AddCommand(c.ingestCommand(), c.emitCommand(), c.drainCommand())

	if err := root.Execute(); err != nil {
		c.logger.Error("logship", ports.Err(err))
		var auditErr *logship.AuditError
		if errors.As(err, &auditErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (c *cli) bindFlags(f *pflag.FlagSet) {
	cfg := &c.cfg
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.logship/config.toml)")
	f.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "base URL of the ingestion server")
	f.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key sent with every request")
	f.StringVar(&cfg.MinimumLevel, "minimum-level", cfg.MinimumLevel, "local minimum level; when empty the server decides")

	f.IntVar(&cfg.BatchPostingLimit, "batch-posting-limit", cfg.BatchPostingLimit, "maximum events per request")
	f.Int64Var(&cfg.BatchSizeLimitBytes, "batch-size-limit", cfg.BatchSizeLimitBytes, "maximum payload bytes per request (0 = unlimited)")
	f.DurationVar(&cfg.Period, "period", cfg.Period, "flush interval")
	f.IntVar(&cfg.QueueLimit, "queue-limit", cfg.QueueLimit, "in-memory queue limit when not buffering")
	f.Int64Var(&cfg.EventBodyLimitBytes, "event-body-limit", cfg.EventBodyLimitBytes, "maximum bytes per event (-1 = unlimited)")

	f.StringVar(&cfg.BufferBaseFilename, "buffer", cfg.BufferBaseFilename, "buffer base path; enables durable delivery")
	f.Int64Var(&cfg.BufferSizeLimitBytes, "buffer-size-limit", cfg.BufferSizeLimitBytes, "maximum bytes buffered per day (0 = unlimited)")
	f.Int64Var(&cfg.BufferFileSizeLimitBytes, "buffer-file-size-limit", cfg.BufferFileSizeLimitBytes, "roll buffer files at this size (0 = daily only)")
	f.Int64Var(&cfg.RetainedInvalidPayloadsLimitBytes, "retained-invalid-limit", cfg.RetainedInvalidPayloadsLimitBytes, "soft limit for quarantined payloads (0 = discard)")

	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "bound on the final flush at exit")

	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (e.g. :9464)")
	f.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to this file")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "level of logship's own diagnostics")
}

// load applies the config file and environment beneath explicitly set
// flags, validates the result and rebuilds the logger at the configured level.
func (c *cli) load(cmd *cobra.Command) error {
	if c.cfgPath == "" {
		c.cfgPath = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if c.cfgPath != "" && cliconfig.FileExists(c.cfgPath) {
		fc, err := cliconfig.LoadFileConfig(c.cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	level, _ := zerolog.ParseLevel(c.cfg.LogLevel)
	if c.cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	c.logger = logAdapter.NewZerologAdapter(os.Stderr, level)

	logCfg := c.cfg
	if logCfg.APIKey != "" {
		logCfg.APIKey = "*****"
	}
	zl := c.logger.Logger()
	zl.Debug().Interface("config", logCfg).Msg("configuration")
	return nil
}

// libConfig converts the CLI configuration for the library. local is the
// switch holding --minimum-level, nil when the server decides.
func (c *cli) libConfig(local *logship.LevelSwitch) logship.Config {
	cfg := logship.DefaultConfig()
	cfg.ServerURL = c.cfg.ServerURL
	cfg.APIKey = c.cfg.APIKey
	cfg.BatchPostingLimit = c.cfg.BatchPostingLimit
	cfg.BatchSizeLimitBytes = c.cfg.BatchSizeLimitBytes
	cfg.Period = c.cfg.Period
	cfg.QueueLimit = c.cfg.QueueLimit
	cfg.EventBodyLimitBytes = c.cfg.EventBodyLimitBytes
	cfg.BufferBaseFilename = c.cfg.BufferBaseFilename
	cfg.BufferSizeLimitBytes = c.cfg.BufferSizeLimitBytes
	cfg.BufferFileSizeLimitBytes = c.cfg.BufferFileSizeLimitBytes
	cfg.RetainedInvalidPayloadsLimitBytes = c.cfg.RetainedInvalidPayloadsLimitBytes
	cfg.HTTPTimeout = c.cfg.HTTPTimeout
	cfg.ShutdownTimeout = c.cfg.ShutdownTimeout
	cfg.MinimumLevel = local
	return cfg
}

// localSwitch returns a switch for --minimum-level, or nil when unset.
func (c *cli) localSwitch() *logship.LevelSwitch {
	if l := c.cfg.Level(); l != nil {
		return logship.NewLevelSwitch(*l)
	}
	return nil
}

// watchConfig keeps local in sync with minimum_level in the config file
// until ctx is canceled.
func (c *cli) watchConfig(ctx context.Context, local *logship.LevelSwitch) {
	if local == nil || !cliconfig.FileExists(c.cfgPath) {
		return
	}
	go func() {
		err := cliconfig.Watch(ctx, c.cfgPath, c.logger, func(fc cliconfig.FileConfig) {
			if fc.MinimumLevel == "" {
				return
			}
			l, err := logship.ParseLevel(fc.MinimumLevel)
			if err != nil {
				c.logger.Warn("ignoring invalid minimum_level", ports.String("value", fc.MinimumLevel))
				return
			}
			if l != local.Level() {
				local.Set(l)
				c.logger.Info("minimum level changed", ports.String("level", l.String()))
			}
		})
		if err != nil {
			c.logger.Warn("config watcher stopped", ports.Err(err))
		}
	}()
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
