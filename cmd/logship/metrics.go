package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bft-labs/logship/internal/adapters/metrics"
	"github.com/bft-labs/logship/internal/ports"
	"github.com/bft-labs/logship/pkg/logship"
)

const metricsFileInterval = 15 * time.Second

// startMetrics exposes the sink's counters on --metrics-addr and refreshes
// --metrics-file until ctx is canceled. The returned func stops both and
// writes the file one last time.
func (c *cli) startMetrics(ctx context.Context, sink *logship.Sink) func() {
	exporter := metrics.NewExporter(sink, map[string]string{"mode": sink.Mode().String()})
	ctx, cancel := context.WithCancel(ctx)

	var srv *http.Server
	if c.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter)
		srv = &http.Server{
			Addr:              c.cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			c.logger.Info("serving metrics", ports.String("addr", c.cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.logger.Error("metrics server failed", ports.Err(err))
			}
		}()
	}

	if c.cfg.MetricsFile != "" {
		go func() {
			ticker := time.NewTicker(metricsFileInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.writeMetrics(exporter)
				}
			}
		}()
	}

	return func() {
		cancel()
		if srv != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}
		c.writeMetrics(exporter)
	}
}

// writeMetricsFile writes the counters of a short-lived sink once.
func (c *cli) writeMetricsFile(sink *logship.Sink) {
	c.writeMetrics(metrics.NewExporter(sink, map[string]string{"mode": sink.Mode().String()}))
}

func (c *cli) writeMetrics(exporter *metrics.Exporter) {
	if c.cfg.MetricsFile == "" {
		return
	}
	if err := exporter.WriteFile(c.cfg.MetricsFile); err != nil {
		c.logger.Warn("failed to write metrics file", ports.String("path", c.cfg.MetricsFile), ports.Err(err))
	}
}
