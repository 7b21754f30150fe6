package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "road_speed"

// Metrics holds the Prometheus counters, histograms, and gauges for calibration and inference.
type Metrics struct {
	// Calibration job metrics.
	CalibrationRunning prometheus.Gauge
	RoadsCalibrated    prometheus.Counter
	RoadsSkipped       prometheus.Counter
	RoadsFailed        prometheus.Counter
	RoadDuration       prometheus.Histogram

	// Per-candidate fitting metrics.
	CandidateFits     *prometheus.CounterVec // labels: candidate, outcome={converged,failed}
	CandidateSelected *prometheus.CounterVec // labels: candidate
	FallbackAverages  prometheus.Counter
	FitDuration       prometheus.Histogram

	// Model store metrics.
	StoreCorruptRecords prometheus.Counter
	RecordCache         *prometheus.CounterVec // labels: result={hit,miss}

	// Inference metrics.
	Predictions *prometheus.CounterVec // labels: operation, outcome={ok,validation_error,type_error,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CalibrationRunning,
		m.RoadsCalibrated,
		m.RoadsSkipped,
		m.RoadsFailed,
		m.RoadDuration,
		m.CandidateFits,
		m.CandidateSelected,
		m.FallbackAverages,
		m.FitDuration,
		m.StoreCorruptRecords,
		m.RecordCache,
		m.Predictions,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they need without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CalibrationRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_running",
			Help:      "1 while a calibration job is running, 0 otherwise.",
		}),
		RoadsCalibrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roads_calibrated_total",
			Help:      "Roads whose model record was persisted.",
		}),
		RoadsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roads_skipped_total",
			Help:      "Roads skipped for lack of training and validation data.",
		}),
		RoadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roads_failed_total",
			Help:      "Roads whose calibration or persistence failed.",
		}),
		RoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "road_calibration_duration_seconds",
			Help:      "Duration of a complete per-road query, fit, and persist cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CandidateFits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_fits_total",
			Help:      "Candidate model fits by candidate and outcome.",
		}, []string{"candidate", "outcome"}),
		CandidateSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_selected_total",
			Help:      "Times each candidate won selection for a (road, nature) pair.",
		}, []string{"candidate"}),
		FallbackAverages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_averages_total",
			Help:      "(road, nature) pairs stored as a constant average speed.",
		}),
		FitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_fit_duration_seconds",
			Help:      "Duration of a single candidate least-squares fit.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		StoreCorruptRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_corrupt_records_total",
			Help:      "Persisted road records that failed to parse and were treated as unmodeled.",
		}),
		RecordCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_cache_total",
			Help:      "Road record cache lookups by result.",
		}, []string{"result"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Inference requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
}
