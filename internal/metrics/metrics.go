// Package metrics holds the Prometheus collectors for sweeps and per-account dispatches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sync_scheduler"

// Sweep results
const (
	SweepCompleted      = "completed"
	SweepNoAccounts     = "no_accounts"
	SweepAlreadyRunning = "already_running"
	SweepInterrupted    = "interrupted"
	SweepPanicked       = "panicked"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepRunning  prometheus.Gauge
	dispatches    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Number of sweep attempts by result.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of sweeps, including pacing delays.",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		}),
		sweepRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweep_running",
			Help:      "1 while a sweep is in progress.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_dispatches_total",
			Help:      "Per-account dispatch attempts by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.sweeps, m.sweepDuration, m.sweepRunning, m.dispatches)
	return m
}

func (m *Metrics) SweepStarted() {
	if m == nil {
		return
	}
	m.sweepRunning.Set(1)
}

// SweepFinished records a sweep result; a zero duration skips the histogram
func (m *Metrics) SweepFinished(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepRunning.Set(0)
	m.sweeps.WithLabelValues(result).Inc()
	if duration > 0 {
		m.sweepDuration.Observe(duration.Seconds())
	}
}

// SweepRejected counts a sweep that did not start because another was in progress
func (m *Metrics) SweepRejected() {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(SweepAlreadyRunning).Inc()
}

func (m *Metrics) Dispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}
