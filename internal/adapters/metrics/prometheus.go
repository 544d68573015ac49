// Package metrics exposes sink diagnostics in the Prometheus text format.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/bft-labs/logship/internal/domain"
)

const namespace = "logship"

// StatsSource provides a snapshot of sink counters.
type StatsSource interface {
	Stats() domain.Stats
}

// Exporter renders a StatsSource as counter families.
type Exporter struct {
	source StatsSource
	labels map[string]string
}

// NewExporter creates an exporter. labels are attached to every sample
// (e.g., mode="durable").
func NewExporter(source StatsSource, labels map[string]string) *Exporter {
	return &Exporter{source: source, labels: labels}
}

type counterDesc struct {
	name  string
	help  string
	value func(domain.Stats) uint64
}

var counters = []counterDesc{
	{"events_enqueued_total", "Events accepted into the queue.", func(s domain.Stats) uint64 { return s.Enqueued }},
	{"events_filtered_total", "Events skipped by the minimum level or while ingestion was unavailable.", func(s domain.Stats) uint64 { return s.Filtered }},
	{"events_dropped_overflow_total", "Events dropped because the queue or daily buffer was full.", func(s domain.Stats) uint64 { return s.DroppedOverflow }},
	{"events_dropped_oversize_total", "Events dropped for exceeding the body limit.", func(s domain.Stats) uint64 { return s.DroppedOversize }},
	{"events_dropped_malformed_total", "Buffered entries skipped as malformed.", func(s domain.Stats) uint64 { return s.DroppedMalformed }},
	{"events_dropped_failed_total", "Events lost to failed sends or write errors.", func(s domain.Stats) uint64 { return s.DroppedFailed }},
	{"events_shipped_total", "Events accepted by the server.", func(s domain.Stats) uint64 { return s.ShippedEvents }},
	{"batches_shipped_total", "Requests accepted by the server.", func(s domain.Stats) uint64 { return s.ShippedBatches }},
	{"send_transient_failures_total", "Requests that failed with a retryable error.", func(s domain.Stats) uint64 { return s.TransientFailures }},
	{"events_rejected_total", "Events permanently rejected by the server.", func(s domain.Stats) uint64 { return s.RejectedEvents }},
	{"payloads_quarantined_total", "Invalid payloads retained on disk.", func(s domain.Stats) uint64 { return s.Quarantined }},
	{"payloads_quarantine_refused_total", "Invalid payloads discarded by the retention limit.", func(s domain.Stats) uint64 { return s.QuarantineRefused }},
	{"level_directives_ignored_total", "Server minimum level directives ignored because a local level is set.", func(s domain.Stats) uint64 { return s.DirectivesIgnored }},
}

// Families returns the current counters as metric families.
func (e *Exporter) Families() []*dto.MetricFamily {
	stats := e.source.Stats()

	var labels []*dto.LabelPair
	for k, v := range e.labels {
		labels = append(labels, &dto.LabelPair{Name: proto.String(k), Value: proto.String(v)})
	}

	out := make([]*dto.MetricFamily, 0, len(counters))
	for _, c := range counters {
		out = append(out, &dto.MetricFamily{
			Name: proto.String(namespace + "_" + c.name),
			Help: proto.String(c.help),
			Type: dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{{
				Label:   labels,
				Counter: &dto.Counter{Value: proto.Float64(float64(c.value(stats)))},
			}},
		})
	}
	return out
}

// Write encodes every family to w in the text exposition format.
func (e *Exporter) Write(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range e.Families() {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile replaces path with the current exposition, for node-exporter
// style textfile collectors.
func (e *Exporter) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := e.Write(&buf); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ServeHTTP serves the exposition.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := e.Write(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	_, _ = w.Write(buf.Bytes())
}
