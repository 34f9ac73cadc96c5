package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clichat"

// Packet directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	wirePackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "packets_total",
			Help:      "Protocol packets sent or received, by method.",
		},
		[]string{"direction", "method"},
	)
	wireUnknown = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "unknown_total",
			Help:      "Received packets with an unrecognized method tag.",
		},
	)
	wireErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "errors_total",
			Help:      "Wire failures by stage (read, write, decode).",
		},
		[]string{"stage"},
	)
	relayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Relay decisions by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	relayOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "online_users",
			Help:      "Users with a verified relay connection.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, wirePackets, wireUnknown, wireErrors, relayMessages, relayOnline)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacket(direction, method string) {
	RegisterMetrics()
	wirePackets.WithLabelValues(direction, method).Inc()
}

func RecordUnknownPacket() {
	RegisterMetrics()
	wireUnknown.Inc()
}

func RecordWireError(stage string) {
	RegisterMetrics()
	wireErrors.WithLabelValues(stage).Inc()
}

func RecordRelay(method, outcome string) {
	RegisterMetrics()
	relayMessages.WithLabelValues(method, outcome).Inc()
}

func SetOnlineUsers(n int) {
	RegisterMetrics()
	relayOnline.Set(float64(n))
}
