package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/sniffctl/internal/decode"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sniffctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "decoder", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sniffctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "decoder", "status"},
	)
	decodeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sniffctl",
			Subsystem: "decode",
			Name:      "runs_total",
			Help:      "Decoder runs by terminal status.",
		},
		[]string{"decoder", "status"},
	)
	decodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sniffctl",
			Subsystem: "decode",
			Name:      "run_duration_seconds",
			Help:      "Decoder run duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"decoder", "status"},
	)
	decodeAnnotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sniffctl",
			Subsystem: "decode",
			Name:      "annotations_total",
			Help:      "Annotations emitted by decoders.",
		},
		[]string{"decoder"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, decodeRuns, decodeDuration, decodeAnnotations)
	})
}

func RecordHTTPRequest(service, method, path, decoder string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, decoder, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, decoder, statusLabel).Observe(duration.Seconds())
}

// RecordDecode has the decode.Observer signature so it can be handed to a
// decode.Runner directly.
func RecordDecode(decoder string, status decode.Status, duration time.Duration, annotations int) {
	RegisterMetrics()
	decodeRuns.WithLabelValues(decoder, string(status)).Inc()
	decodeDuration.WithLabelValues(decoder, string(status)).Observe(duration.Seconds())
	if annotations > 0 {
		decodeAnnotations.WithLabelValues(decoder).Add(float64(annotations))
	}
}

var _ decode.Observer = RecordDecode
