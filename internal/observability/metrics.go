package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

var (
	registerOnce sync.Once

	connAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "promecieus",
			Subsystem: "conn",
			Name:      "attempts_total",
			Help:      "Websocket connection attempts.",
		},
	)
	connOpens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "promecieus",
			Subsystem: "conn",
			Name:      "opens_total",
			Help:      "Websocket connections that reached OPEN.",
		},
	)
	connCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promecieus",
			Subsystem: "conn",
			Name:      "closes_total",
			Help:      "Websocket connection closures by reason.",
		},
		[]string{"reason"},
	)
	retryDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "promecieus",
			Subsystem: "conn",
			Name:      "retry_delay_seconds",
			Help:      "Scheduled reconnect delays.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 10},
		},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promecieus",
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Frames transferred by direction and action.",
		},
		[]string{"direction", "action"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promecieus",
			Subsystem: "wire",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped by direction and reason.",
		},
		[]string{"direction", "reason"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promecieus",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "promecieus",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	liveApps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "promecieus",
			Subsystem: "jobservice",
			Name:      "apps",
			Help:      "Apps currently held by the job service.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connAttempts,
			connOpens,
			connCloses,
			retryDelay,
			frames,
			framesDropped,
			httpRequests,
			httpDuration,
			liveApps,
		)
	})
}

func RecordConnAttempt() {
	RegisterMetrics()
	connAttempts.Inc()
}

func RecordConnOpen() {
	RegisterMetrics()
	connOpens.Inc()
}

func RecordConnClose(reason string) {
	RegisterMetrics()
	connCloses.WithLabelValues(reason).Inc()
}

func RecordRetryScheduled(delay time.Duration) {
	RegisterMetrics()
	retryDelay.Observe(delay.Seconds())
}

func RecordFrame(direction, action string) {
	RegisterMetrics()
	frames.WithLabelValues(direction, action).Inc()
}

func RecordFrameDropped(direction, reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(direction, reason).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func SetLiveApps(n int) {
	RegisterMetrics()
	liveApps.Set(float64(n))
}
