// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_engine_predictions_total",
			Help: "Total number of predictions made",
		},
		[]string{"symbol", "direction"},
	)

	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stock_engine_snapshot_duration_seconds",
			Help:    "Feature snapshot generation duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_engine_training_runs_total",
			Help: "Total model training runs by data source",
		},
		[]string{"source"}, // real | synthetic
	)

	LearningProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_engine_learning_processed_total",
			Help: "Completed predictions consumed by the learning loop",
		},
	)

	LayerRollingAccuracy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stock_engine_layer_rolling_accuracy",
			Help: "Decayed rolling accuracy per signal layer",
		},
		[]string{"layer", "regime", "horizon"},
	)

	CandleFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_engine_candle_fetches_total",
			Help: "Upstream candle fetches by outcome",
		},
		[]string{"provider", "outcome"}, // outcome: ok | error
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stock_engine_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)
