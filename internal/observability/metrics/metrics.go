// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "warm_transfer"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Queue metrics
	QueueDepth    prometheus.Gauge
	EnqueuesTotal prometheus.Counter
	MatchesTotal  prometheus.Counter

	// Transcription metrics
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	SegmentsStored   *prometheus.CounterVec
	SegmentsDropped  *prometheus.CounterVec
	AudioBytes       prometheus.Counter
	ChunksDispatched prometheus.Counter

	// Transfer metrics
	TransfersInitiated *prometheus.CounterVec
	TransferStages     *prometheus.CounterVec
	SummaryFallbacks   prometheus.Counter

	// Connection metrics
	ConnectionsOpen prometheus.Gauge

	// External call metrics
	ExternalCallDuration *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// New creates and registers all metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of customers currently waiting.",
		}),
		EnqueuesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueues_total",
			Help:      "Total customers enqueued.",
		}),
		MatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Total customer/agent assignments produced by the matcher.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcription_sessions_active",
			Help:      "Transcription sessions currently active.",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_sessions_total",
			Help:      "Total transcription sessions started.",
		}),
		SegmentsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_segments_stored_total",
			Help:      "Transcript segments stored, by finality.",
		}, []string{"finality"}),
		SegmentsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_segments_dropped_total",
			Help:      "Transcript segments dropped, by reason.",
		}, []string{"reason"}),
		AudioBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Raw audio bytes received from clients.",
		}),
		ChunksDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dispatched_total",
			Help:      "Audio chunks dispatched to the speech engine.",
		}),
		TransfersInitiated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_initiated_total",
			Help:      "Warm transfers initiated, by room strategy.",
		}, []string{"strategy"}),
		TransferStages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_stage_transitions_total",
			Help:      "Transfer state transitions, by reached state.",
		}, []string{"state"}),
		SummaryFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_fallbacks_total",
			Help:      "Summaries substituted with the templated fallback.",
		}),
		ConnectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_open",
			Help:      "Persistent connections currently open.",
		}),
		ExternalCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Latency of calls to external collaborators.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service", "outcome"}),
		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total Kafka publish attempts, by topic.",
		}, []string{"topic"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Failed Kafka publishes, by topic.",
		}, []string{"topic"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency, by topic.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

// DefaultMetrics is registered against the default Prometheus registry.
var DefaultMetrics = New(prometheus.DefaultRegisterer)

// RecordKafkaPublish records one publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, seconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(seconds)
}

// RecordExternalCall records one call to an external collaborator.
func (m *Metrics) RecordExternalCall(service string, err error, since time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ExternalCallDuration.WithLabelValues(service, outcome).Observe(time.Since(since).Seconds())
}
