// Package metrics exposes Prometheus collectors for the sitegen service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation results.
const (
	ResultSuccess      = "success"
	ResultGenerateFail = "generation_error"
	ResultPersistFail  = "persist_error"
	ResultStored       = "stored"
	ResultFailed       = "failed"
	ResultDropped      = "dropped"
)

var (
	generationsTotal           *prometheus.CounterVec
	chunksStreamedTotal        prometheus.Counter
	clientDisconnectsTotal     prometheus.Counter
	uploadDurationSeconds      *prometheus.HistogramVec
	screenshotsTotal           *prometheus.CounterVec
	screenshotQueueDepth       prometheus.Gauge
	rateLimitedTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		generationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitegen_generations_total",
				Help: "Completed generation requests, labeled by result.",
			},
			[]string{"result"},
		)

		chunksStreamedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitegen_chunks_streamed_total",
				Help: "Chunks delivered to clients.",
			},
		)

		clientDisconnectsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitegen_client_disconnects_total",
				Help: "Streams whose consumer went away before the generator finished.",
			},
		)

		uploadDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitegen_upload_duration_seconds",
				Help:    "Object storage upload latency, labeled by artifact kind.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		)

		screenshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitegen_screenshots_total",
				Help: "Screenshot tasks, labeled by result.",
			},
			[]string{"result"},
		)

		screenshotQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitegen_screenshot_queue_depth",
				Help: "Screenshot tasks waiting for a worker.",
			},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitegen_rate_limited_total",
				Help: "Requests rejected by the rate limiter, labeled by route.",
			},
			[]string{"route"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGeneration counts a finished generation request.
func ObserveGeneration(result string) {
	Init()
	generationsTotal.WithLabelValues(result).Inc()
}

// ObserveChunk counts one chunk written to a client.
func ObserveChunk() {
	Init()
	chunksStreamedTotal.Inc()
}

// ObserveDisconnect counts a consumer that stopped reading early.
func ObserveDisconnect() {
	Init()
	clientDisconnectsTotal.Inc()
}

// ObserveUpload records one storage upload.
func ObserveUpload(kind string, duration time.Duration) {
	Init()
	uploadDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveScreenshot counts a screenshot task outcome.
func ObserveScreenshot(result string) {
	Init()
	screenshotsTotal.WithLabelValues(result).Inc()
}

// SetScreenshotQueueDepth publishes the current queue length.
func SetScreenshotQueueDepth(n int) {
	Init()
	screenshotQueueDepth.Set(float64(n))
}

// ObserveRateLimited counts a rejected request.
func ObserveRateLimited(route string) {
	Init()
	rateLimitedTotal.WithLabelValues(route).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
