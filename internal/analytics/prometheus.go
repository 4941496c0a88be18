package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Instruments groups all Prometheus metrics exported by the engine.
// Registered once at startup via NewInstruments; a custom registry keeps
// tests isolated and avoids global state.
type Instruments struct {
	Sent        *prometheus.CounterVec
	Delivered   *prometheus.CounterVec
	Failed      *prometheus.CounterVec
	RateLimited prometheus.Counter
	Expired     prometheus.Counter
	Latency     *prometheus.HistogramVec

	QueueDepthSubmissions prometheus.Gauge
	QueueDepthRetries     prometheus.Gauge
}

func NewInstruments(reg prometheus.Registerer) *Instruments {
	m := &Instruments{
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total delivery records submitted for dispatch.",
		}, []string{"channel", "type"}),

		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Total successfully delivered records.",
		}, []string{"channel"}),

		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total permanently failed records (retries exhausted).",
		}, []string{"channel"}),

		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_rate_limited_total",
			Help: "Notifications dropped for a cycle by rate limiting.",
		}),

		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_expired_total",
			Help: "Notifications discarded because they expired before dispatch.",
		}),

		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_delivery_seconds",
			Help:    "Per-attempt delivery latency from dispatch to channel ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		QueueDepthSubmissions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "delivery_queue_depth",
			Help: "Current number of jobs waiting in the submission queue.",
		}),
		QueueDepthRetries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "retry_queue_depth",
			Help: "Current number of retry items waiting out their backoff.",
		}),
	}

	reg.MustRegister(
		m.Sent,
		m.Delivered,
		m.Failed,
		m.RateLimited,
		m.Expired,
		m.Latency,
		m.QueueDepthSubmissions,
		m.QueueDepthRetries,
	)

	return m
}
