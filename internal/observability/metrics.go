package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// tank-siting service.
type Metrics struct {
	StageEventsConsumed *prometheus.CounterVec // labels: stage
	RowErrors           *prometheus.CounterVec // labels: stage
	ApplyErrors         prometheus.Counter
	PipelineRunning     prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Geometry and compliance metrics.
	BoundaryCalcDuration prometheus.Histogram
	ComplianceResults    *prometheus.CounterVec // labels: status
	SnapshotsPublished   prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StageEventsConsumed,
		m.RowErrors,
		m.ApplyErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.BoundaryCalcDuration,
		m.ComplianceResults,
		m.SnapshotsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		StageEventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tank_siting",
			Name:      "stage_events_consumed_total",
			Help:      "Stage events read from the source topic, by stage.",
		}, []string{"stage"}),
		RowErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tank_siting",
			Name:      "row_errors_total",
			Help:      "Recoverable per-row failures (unparseable values, per-tank geometry errors), by stage.",
		}, []string{"stage"}),
		ApplyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tank_siting",
			Name:      "apply_errors_total",
			Help:      "Stage events that failed to apply and were skipped.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tank_siting",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tank_siting",
			Name:      "batch_size",
			Help:      "Number of stage events per batch extracted from the source.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tank_siting",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-apply-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		BoundaryCalcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tank_siting",
			Name:      "boundary_calc_duration_seconds",
			Help:      "Duration of one tank-to-boundary distance computation.",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}),
		ComplianceResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tank_siting",
			Name:      "compliance_results_total",
			Help:      "Classification outcomes, by status.",
		}, []string{"status"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tank_siting",
			Name:      "snapshots_published_total",
			Help:      "Session snapshots published to the sink topic.",
		}),
	}
}
