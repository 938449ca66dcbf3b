// Package metrics exposes comparison runs as Prometheus metrics. Batch runs
// write them to a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"segcompare/pkg/pairwise"
)

type Metrics struct {
	// Pair outcomes, labelled by metric and reason
	PairsTotal *prometheus.CounterVec

	// Time spent filling one matrix
	ComputeDuration *prometheus.HistogramVec

	// Sample slots of the last run, labelled by metric and state
	Samples *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the comparison metrics on reg. A nil reg gets a
// private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Metrics{
		PairsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "segcompare_pairs_total",
				Help: "Sample pairs scored, by outcome",
			},
			[]string{"metric", "reason"},
		),
		ComputeDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "segcompare_compute_duration_seconds",
				Help:    "Time to fill one pairwise score matrix",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"metric"},
		),
		Samples: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "segcompare_samples",
				Help: "Sample slots in the last comparison",
			},
			[]string{"metric", "state"}, // state: present/missing
		),
		gatherer: reg,
	}
}

// Observe records one filled matrix. present is the number of slots that
// held a sample.
func (m *Metrics) Observe(metric string, matrix *pairwise.Matrix, present int, took time.Duration) {
	if m == nil || matrix == nil {
		return
	}
	for reason, count := range matrix.Counts() {
		m.PairsTotal.WithLabelValues(metric, reason.String()).Add(float64(count))
	}
	m.ComputeDuration.WithLabelValues(metric).Observe(took.Seconds())
	m.Samples.WithLabelValues(metric, "present").Set(float64(present))
	m.Samples.WithLabelValues(metric, "missing").Set(float64(matrix.Size() - present))
}

// WriteTextfile dumps every registered metric in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.gatherer), "write metrics to %s", path)
}
