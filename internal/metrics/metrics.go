package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics for production monitoring
var (
	// Sampling metrics
	SamplesCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostpulse_samples_collected_total",
			Help: "Total number of telemetry samples collected",
		},
	)

	SampleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostpulse_sample_errors_total",
			Help: "Total number of failed collection attempts",
		},
		[]string{"stage"}, // stage: collect/store
	)

	SampleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostpulse_sample_duration_seconds",
			Help:    "Telemetry collection duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
	)

	// Store metrics
	StoreWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostpulse_store_write_errors_total",
			Help: "Total number of telemetry store write failures",
		},
	)

	StoreRowsPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostpulse_store_rows_purged_total",
			Help: "Total number of rows removed by retention sweeps",
		},
		[]string{"table"},
	)

	// Prediction metrics
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostpulse_predictions_total",
			Help: "Total number of prediction passes",
		},
		[]string{"outcome"}, // outcome: made/skipped
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostpulse_prediction_duration_seconds",
			Help:    "Prediction pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	SlowdownRisk = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostpulse_slowdown_risk",
			Help: "Latest predicted slowdown probability (0-1)",
		},
	)

	SystemStress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostpulse_system_stress",
			Help: "Latest composite system stress score (0-100)",
		},
	)

	// Training metrics
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostpulse_training_runs_total",
			Help: "Total number of model training runs",
		},
		[]string{"outcome"}, // outcome: success/insufficient_data/failed
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostpulse_training_duration_seconds",
			Help:    "Model training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	// Suggestion metrics
	SuggestionsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostpulse_suggestions_generated_total",
			Help: "Total number of suggestion lines produced",
		},
	)

	// Remediation metrics
	RemediationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostpulse_remediation_actions_total",
			Help: "Total number of remediation actions",
		},
		[]string{"action", "outcome"}, // action: kill/optimize, outcome: executed/refused/failed
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostpulse_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostpulse_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: in/out
	)
)
