package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketplace_pulse"

// PipelineMetrics holds all Prometheus metrics for the analytics services.
type PipelineMetrics struct {
	MessagesTotal     *prometheus.CounterVec
	ProcessingSeconds prometheus.Histogram
	SideEffectErrors  *prometheus.CounterVec

	JobRunsTotal  *prometheus.CounterVec
	JobSkipsTotal *prometheus.CounterVec
	JobSeconds    *prometheus.HistogramVec
	RollupRows    *prometheus.CounterVec

	HeartbeatsTotal *prometheus.CounterVec
	OnlineSessions  prometheus.Gauge

	BreakerState *prometheus.GaugeVec

	APIKeyCacheHits   prometheus.Counter
	APIKeyCacheMisses prometheus.Counter
	AuthRejections    *prometheus.CounterVec
}

// New initializes the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in services and a fresh registry in tests.
func New(reg prometheus.Registerer) *PipelineMetrics {
	f := promauto.With(reg)
	return &PipelineMetrics{
		MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Total number of broker messages by outcome.",
		}, []string{"outcome"}), // outcome: acked, duplicate, malformed, failed
		ProcessingSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "processing_seconds",
			Help:      "Time spent handling one broker message.",
			Buckets:   prometheus.DefBuckets,
		}),
		SideEffectErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "side_effect_errors_total",
			Help:      "Cache invalidation and dashboard publish failures that did not fail the message.",
		}, []string{"kind"}), // kind: cache, dashboard
		JobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job runs by result.",
		}, []string{"job", "result"}), // result: success, error
		JobSkipsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_skips_total",
			Help:      "Triggers skipped because the previous run was still in progress.",
		}, []string{"job"}),
		JobSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"job"}),
		RollupRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollup",
			Name:      "rows_total",
			Help:      "Metric rows written or skipped by the rollup, by bucket.",
		}, []string{"bucket", "result"}), // result: written, failed
		HeartbeatsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "heartbeats_total",
			Help:      "Total number of heartbeats by status.",
		}, []string{"status"}), // status: accepted, invalid, error, rate_limited
		OnlineSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "online_sessions",
			Help:      "Online sessions at the last computed snapshot.",
		}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"breaker"}),
		APIKeyCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_hits_total",
			Help:      "Total number of API key cache hits.",
		}),
		APIKeyCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_misses_total",
			Help:      "Total number of API key cache misses.",
		}),
		AuthRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rejections_total",
			Help:      "Requests refused by API key authentication.",
		}, []string{"reason"}), // reason: missing, invalid, error
	}
}
