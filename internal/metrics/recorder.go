package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for fsperf_runs_total.
const (
	OutcomePassed    = "passed"
	OutcomeFailed    = "failed"
	OutcomeNotRun    = "not_run"
	OutcomeRegressed = "regressed"
)

// Recorder counts harness-level events on its own registry so that tests
// and repeated invocations never collide on the default registry.
type Recorder struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	probeFailures *prometheus.CounterVec
	regressions   *prometheus.CounterVec
}

// NewRecorder registers the fsperf collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsperf_runs_total",
				Help: "Benchmark runs by test and outcome.",
			},
			[]string{"test", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fsperf_run_duration_seconds",
				Help:    "Wall-clock duration of a full run lifecycle.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
			[]string{"test"},
		),
		probeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsperf_probe_failures_total",
				Help: "Latency probes whose histogram was dropped, by kernel function.",
			},
			[]string{"function"},
		),
		regressions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsperf_regressions_total",
				Help: "Metrics that crossed their regression threshold, by test and metric.",
			},
			[]string{"test", "metric"},
		),
	}
}

// ObserveRun records the outcome and duration of one run.
func (r *Recorder) ObserveRun(test, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(test, outcome).Inc()
	r.runDuration.WithLabelValues(test).Observe(elapsed.Seconds())
}

// ProbeFailed counts a dropped latency probe.
func (r *Recorder) ProbeFailed(function string) {
	if r == nil {
		return
	}
	r.probeFailures.WithLabelValues(function).Inc()
}

// Regressed counts a regressed metric.
func (r *Recorder) Regressed(test, metric string) {
	if r == nil {
		return
	}
	r.regressions.WithLabelValues(test, metric).Inc()
}

// Registry exposes the underlying gatherer.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current metric values to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
