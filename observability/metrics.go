package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatsync"

// Metrics owns a dedicated prometheus registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	Frames        *prometheus.CounterVec
	RateLimited   prometheus.Counter
	SlowConsumers prometheus.Counter
	Handshakes    *prometheus.CounterVec
	ChannelDepth  *prometheus.GaugeVec
	Restarts      *prometheus.CounterVec
}

func NewMetrics(source StatsSource) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_total",
			Help:      "Websocket frames by direction.",
		}, []string{"direction"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_rate_limited_total",
			Help:      "Inbound frames dropped by the per connection rate limiter.",
		}),
		SlowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_slow_consumers_total",
			Help:      "Connections closed because their outbound queue was full.",
		}),
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_handshakes_total",
			Help:      "Websocket handshakes by outcome.",
		}, []string{"outcome"}),
		ChannelDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_depth",
			Help:      "Queued items in internal channels.",
		}, []string{"channel"}),
		Restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Supervised workers restarted after a crash.",
		}, []string{"worker"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.Frames, m.RateLimited, m.SlowConsumers, m.Handshakes, m.ChannelDepth, m.Restarts,
		gauge("connections", "Open websocket connections.", func() float64 {
			return float64(source.Stats().Connections)
		}),
		gauge("rooms", "Rooms with at least one member.", func() float64 {
			return float64(source.Stats().Rooms)
		}),
		gauge("online_users", "Users with at least one open connection.", func() float64 {
			return float64(source.Stats().OnlineUsers)
		}),
		gauge("typing", "Active typing states.", func() float64 {
			return float64(source.Stats().Typing)
		}),
		gauge("fanout_pending", "Sends queued on the fan-out lanes.", func() float64 {
			return float64(source.Stats().PendingSend)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted and broadcast.",
		}, func() float64 { return float64(source.Stats().Sent) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Sends refused by validation, authorization or storage.",
		}, func() float64 { return float64(source.Stats().Rejected) }),
	)
	return m
}

func gauge(name, help string, fn func() float64) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, fn)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
