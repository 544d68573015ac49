package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/logship/internal/clef"
	"github.com/bft-labs/logship/internal/ports"
	"github.com/bft-labs/logship/pkg/logship"
)

func (c *cli) ingestCommand() *cobra.Command {
	var levelName string

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ship events read line by line from a file or stdin",
		Long: `Ship events read line by line from a file, or stdin when no file is given.

JSON object lines are shipped verbatim with the level taken from "@l".
Other lines become events with the text as "@m" and the --level given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defaultLevel, err := logship.ParseLevel(levelName)
			if err != nil {
				return fmt.Errorf("level: %w", err)
			}

			in := io.Reader(cmd.InOrStdin())
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			ctx, stop := signalContext()
			defer stop()

			local := c.localSwitch()
			sink, err := logship.New(c.libConfig(local), logship.WithLogger(c.logger))
			if err != nil {
				return fmt.Errorf("create sink: %w", err)
			}
			stopMetrics := c.startMetrics(ctx, sink)
			defer stopMetrics()
			c.watchConfig(ctx, local)

			if err := sink.Start(ctx); err != nil {
				_ = sink.Close()
				return fmt.Errorf("start sink: %w", err)
			}

			readErr := c.readLines(ctx, in, defaultLevel, sink)
			if ctx.Err() != nil {
				c.logger.Info("received signal, stopping...")
			}

			stopErr := sink.Stop()
			c.logStats(sink)
			if readErr != nil {
				return readErr
			}
			if stopErr != nil {
				return fmt.Errorf("stop sink: %w", stopErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&levelName, "level", "Information", "level of plain text lines")
	return cmd
}

// readLines emits every line of in until EOF or ctx is canceled. Reading
// happens on its own goroutine so a blocked stdin does not delay shutdown.
func (c *cli) readLines(ctx context.Context, in io.Reader, level logship.Level, sink *logship.Sink) error {
	done := make(chan error, 1)
	go func() {
		r := bufio.NewReaderSize(in, 64*1024)
		for ctx.Err() == nil {
			line, err := r.ReadBytes('\n')
			if len(line) > 0 {
				c.emitLine(ctx, line, level, sink)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (c *cli) emitLine(ctx context.Context, line []byte, level logship.Level, sink *logship.Sink) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	ev, err := clef.ParseLine(line, level, time.Now())
	if err != nil {
		c.logger.Warn("skipping unparseable line", ports.Err(err))
		return
	}
	if err := sink.Emit(ctx, ev); err != nil {
		c.logger.Debug("event not emitted", ports.Err(err))
	}
}

func (c *cli) emitCommand() *cobra.Command {
	var (
		levelName  string
		exception  string
		properties map[string]string
	)

	cmd := &cobra.Command{
		Use:   "emit <message-template>",
		Short: "Send one event synchronously and fail unless the server accepts it",
		Long: `Send one event synchronously and fail unless the server accepts it.

The message is a template: {Name} placeholders are rendered by the server
from the --property values. The exit status is 2 when the server refused
or could not take the event.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := logship.ParseLevel(levelName)
			if err != nil {
				return fmt.Errorf("level: %w", err)
			}
			if c.cfg.BufferBaseFilename != "" {
				c.logger.Warn("emit does not use the buffer, ignoring it",
					ports.String("buffer", c.cfg.BufferBaseFilename))
			}

			ctx, stop := signalContext()
			defer stop()

			cfg := c.libConfig(c.localSwitch())
			cfg.Audit = true
			cfg.BufferBaseFilename = ""
			cfg.BufferSizeLimitBytes = 0
			cfg.BufferFileSizeLimitBytes = 0
			cfg.RetainedInvalidPayloadsLimitBytes = 0
			sink, err := logship.New(cfg, logship.WithLogger(c.logger))
			if err != nil {
				return fmt.Errorf("create sink: %w", err)
			}
			defer sink.Close()

			props := make(map[string]any, len(properties))
			for k, v := range properties {
				props[k] = v
			}
			err = sink.Write(ctx, logship.Record{
				Level:           level,
				MessageTemplate: args[0],
				Exception:       exception,
				Properties:      props,
			})
			c.writeMetricsFile(sink)
			if err != nil {
				return err
			}
			if sink.Stats().ShippedEvents == 0 {
				c.logger.Info("event below the minimum level, not sent",
					ports.String("minimum", sink.MinimumLevel().String()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&levelName, "level", "Information", "event level")
	cmd.Flags().StringVar(&exception, "exception", "", "exception text attached to the event")
	cmd.Flags().StringToStringVarP(&properties, "property", "p", nil, "event property as name=value (repeatable)")
	return cmd
}

func (c *cli) drainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Ship everything left in a buffer, then exit",
		Long: `Ship everything left in a buffer, then exit.

Fails when another logship process owns the buffer or when the server does
not accept a batch; the bookmark keeps the position for the next attempt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.BufferBaseFilename == "" {
				return errors.New("drain requires --buffer")
			}

			ctx, stop := signalContext()
			defer stop()

			sink, err := logship.New(c.libConfig(c.localSwitch()), logship.WithLogger(c.logger))
			if err != nil {
				return fmt.Errorf("open buffer: %w", err)
			}
			stopMetrics := c.startMetrics(ctx, sink)
			defer stopMetrics()

			drainErr := sink.Drain(ctx)
			closeErr := sink.Close()
			c.logStats(sink)
			switch {
			case drainErr != nil && ctx.Err() != nil:
				c.logger.Info("interrupted, buffer position saved")
				return nil
			case drainErr != nil:
				return fmt.Errorf("drain: %w", drainErr)
			case closeErr != nil:
				return fmt.Errorf("close buffer: %w", closeErr)
			}
			return nil
		},
	}
}

func (c *cli) logStats(sink *logship.Sink) {
	s := sink.Stats()
	c.logger.Info("done",
		ports.String("mode", sink.Mode().String()),
		ports.Uint64("shipped", s.ShippedEvents),
		ports.Uint64("dropped", s.Dropped()),
		ports.Uint64("rejected", s.RejectedEvents),
		ports.Uint64("filtered", s.Filtered),
		ports.String("minimum_level", strings.ToLower(sink.MinimumLevel().String())),
	)
}
