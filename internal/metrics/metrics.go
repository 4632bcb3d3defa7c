// Package metrics exposes Prometheus collectors for tasks and downloads.
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

var (
	itemsTotal                 *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	tasksTotal                 *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	parseItems                 *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archoctopus_items_total",
				Help: "Total number of items processed, labeled by domain and outcome.",
			},
			[]string{"domain", "outcome"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archoctopus_bytes_total",
				Help: "Total number of image bytes written to disk, labeled by domain.",
			},
			[]string{"domain"},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archoctopus_tasks_total",
				Help: "Total number of finished task runs, labeled by terminal state.",
			},
			[]string{"state"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archoctopus_active_workers",
				Help: "Number of downloader goroutines currently running.",
			},
		)

		parseItems = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archoctopus_parse_items",
				Help:    "Number of items queued per task run, labeled by domain.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archoctopus_http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archoctopus_http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem counts one downloader outcome.
func ObserveItem(domain, outcome string, bytes int64) {
	itemsTotal.WithLabelValues(domain, outcome).Inc()
	if bytes > 0 {
		bytesTotal.WithLabelValues(domain).Add(float64(bytes))
	}
}

// ObserveTask counts a finished run.
func ObserveTask(state string) {
	tasksTotal.WithLabelValues(state).Inc()
}

// ObserveParse records how many items a run queued.
func ObserveParse(domain string, count int) {
	parseItems.WithLabelValues(domain).Observe(float64(count))
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// AddActiveWorkers moves the active workers gauge by n.
func AddActiveWorkers(n int) {
	activeWorkers.Add(float64(n))
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
