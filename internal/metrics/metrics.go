// Package metrics collects per-run detection statistics on a run-local
// Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for one analysis run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Batches classified by verdict status
	Batches *prometheus.CounterVec

	// Ballots in classified batches by verdict status
	Ballots *prometheus.CounterVec

	// Seed candidates (or sequence models) scored by detector
	Candidates *prometheus.CounterVec

	// Per-batch detection latency by detector
	DetectLatency *prometheus.HistogramVec
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dvsorder_batches_total",
			Help: "Batches analyzed by verdict status",
		}, []string{"status"}),

		Ballots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dvsorder_ballots_total",
			Help: "Ballot records in analyzed batches by verdict status",
		}, []string{"status"}),

		Candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dvsorder_candidates_evaluated_total",
			Help: "Candidates scored while explaining batch order",
		}, []string{"detector"}),

		DetectLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dvsorder_detect_duration_seconds",
			Help:    "Duration of detection for one batch",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"detector"}),
	}
}

// Registry exposes the underlying registry for custom gatherers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveVerdict records one classified batch of the given size.
func (m *Metrics) ObserveVerdict(status string, ballots int) {
	if m != nil {
		m.Batches.WithLabelValues(status).Inc()
		m.Ballots.WithLabelValues(status).Add(float64(ballots))
	}
}

// AddCandidates records the number of candidates a detector scored.
func (m *Metrics) AddCandidates(detector string, n uint64) {
	if m != nil && detector != "" {
		m.Candidates.WithLabelValues(detector).Add(float64(n))
	}
}

// ObserveDetect records the duration of one batch detection.
func (m *Metrics) ObserveDetect(detector string, d time.Duration) {
	if m != nil {
		m.DetectLatency.WithLabelValues(detector).Observe(d.Seconds())
	}
}

// WriteTextfile writes all metrics to path in the text exposition format
// read by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
