package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the QC pipeline.
type Metrics struct {
	JobsConsumed    prometheus.Counter
	ResultsProduced prometheus.Counter
	TransformErrors prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// QC engine metrics.
	GatesMasked  *prometheus.CounterVec // label: step
	GatesClamped prometheus.Counter

	// Dealiasing metrics.
	DealiasRequests *prometheus.CounterVec   // label: outcome={success,error}
	DealiasDuration prometheus.Histogram
	DealiasEnabled  prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar_qc",
			Name:      "jobs_consumed_total",
			Help:      "Total scan jobs read from the source topic.",
		}),
		ResultsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar_qc",
			Name:      "results_produced_total",
			Help:      "Total QC results written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar_qc",
			Name:      "transform_errors_total",
			Help:      "Total QC transformation failures.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "radar_qc",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radar_qc",
			Name:      "batch_size",
			Help:      "Number of scan jobs per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radar_qc",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		GatesMasked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radar_qc",
			Name:      "gates_masked_total",
			Help:      "Gates set to missing, by QC step.",
		}, []string{"step"}),
		GatesClamped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radar_qc",
			Name:      "gates_clamped_total",
			Help:      "Gates clipped to a range bound.",
		}),
		DealiasRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radar_qc",
			Name:      "dealias_requests_total",
			Help:      "Dealiasing service requests by outcome.",
		}, []string{"outcome"}),
		DealiasDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radar_qc",
			Name:      "dealias_duration_seconds",
			Help:      "Region-based dealiasing request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DealiasEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "radar_qc",
			Name:      "dealias_enabled",
			Help:      "1 when dealiasing is enabled, 0 otherwise.",
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.JobsConsumed,
		m.ResultsProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.GatesMasked,
		m.GatesClamped,
		m.DealiasRequests,
		m.DealiasDuration,
		m.DealiasEnabled,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
