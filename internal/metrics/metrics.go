// Package metrics exports the outcome of a recompression batch in the
// Prometheus text format, for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/acm19/recjpeg/internal/recjpeg"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the gauges describing the last batch.
type Recorder struct {
	registry  *prometheus.Registry
	files     *prometheus.GaugeVec
	bytes     *prometheus.GaugeVec
	duration  prometheus.Gauge
	timestamp prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry, so only batch
// metrics end up in the textfile.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "recjpeg",
			Name:      "files",
			Help:      "Files handled by the last batch, by status.",
		}, []string{"status"}),
		bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "recjpeg",
			Name:      "bytes",
			Help:      "Total size of the reported files before and after recompression.",
		}, []string{"stage"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recjpeg",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last batch.",
		}),
		timestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recjpeg",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last batch finished.",
		}),
	}
	r.registry.MustRegister(r.files, r.bytes, r.duration, r.timestamp)
	return r
}

// Observe records a finished batch.
func (r *Recorder) Observe(result *recjpeg.BatchResult, elapsed time.Duration) {
	r.files.WithLabelValues("processed").Set(float64(len(result.Outcomes)))
	r.files.WithLabelValues("skipped").Set(float64(len(result.Skipped)))
	r.files.WithLabelValues("failed").Set(float64(len(result.Failed)))
	r.bytes.WithLabelValues("before").Set(float64(result.InputBytes))
	r.bytes.WithLabelValues("after").Set(float64(result.OutputBytes))
	r.duration.Set(elapsed.Seconds())
	r.timestamp.SetToCurrentTime()
}

// WriteTextfile atomically writes the metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
