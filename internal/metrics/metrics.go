package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/salon-notifier/internal/broker"
	"github.com/notifyhub/salon-notifier/internal/dispatch"
	"github.com/notifyhub/salon-notifier/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	EventsProcessed   *prometheus.CounterVec
	ProcessingLatency *prometheus.HistogramVec
	DeliveryAttempts  *prometheus.CounterVec
	ChannelLatency    *prometheus.HistogramVec
	QueueDepth        *prometheus.GaugeVec
}

// New registers all instruments with the given registerer. A custom registry
// keeps tests isolated from the global one.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_events_total",
			Help: "Events consumed, by kind and terminal outcome (ack, retry, dead_letter, abandoned).",
		}, []string{"kind", "outcome"}),

		ProcessingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_processing_seconds",
			Help:    "Time from delivery to ack/nack decision.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Channel delivery attempts, by channel and status.",
		}, []string{"channel", "status"}),

		ChannelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "channel_send_seconds",
			Help:    "Transport send latency per channel, including rate limiter wait.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Ready messages per broker queue, sampled by the queue monitor.",
		}, []string{"queue"}),
	}

	reg.MustRegister(
		m.EventsProcessed,
		m.ProcessingLatency,
		m.DeliveryAttempts,
		m.ChannelLatency,
		m.QueueDepth,
	)

	return m
}

// ConsumerHooks returns the callbacks expected by broker.Hooks.
func (m *Metrics) ConsumerHooks() broker.Hooks {
	return broker.Hooks{
		OnOutcome: func(kind string, outcome broker.Outcome, elapsed time.Duration) {
			m.EventsProcessed.WithLabelValues(kind, string(outcome)).Inc()
			m.ProcessingLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
		},
	}
}

// DispatchHooks returns the callbacks expected by dispatch.Hooks.
func (m *Metrics) DispatchHooks() dispatch.Hooks {
	return dispatch.Hooks{
		OnAttempt: func(ch domain.Channel, status domain.DeliveryStatus, latency time.Duration) {
			m.DeliveryAttempts.WithLabelValues(string(ch), string(status)).Inc()
			// Skipped and duplicate attempts never reach a transport.
			if latency > 0 {
				m.ChannelLatency.WithLabelValues(string(ch)).Observe(latency.Seconds())
			}
		},
	}
}

// SetQueueDepth is the callback for the queue monitor.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}
