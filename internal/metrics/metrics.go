// Package metrics exposes Prometheus collectors for the validation service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	scrapeSessionsTotal        *prometheus.CounterVec
	scrapeRecordsTotal         prometheus.Counter
	cartCapturesTotal          *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
		scrapeSessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_scrape_sessions_total",
				Help: "Location scrape sessions, labeled by result.",
			},
			[]string{"result"},
		)
		scrapeRecordsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_scrape_records_total",
				Help: "Total price records extracted across all sessions.",
			},
		)
		cartCapturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_cart_captures_total",
				Help: "Cart price capture attempts, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveScrapeSession counts one finished location session.
func ObserveScrapeSession(succeeded bool, records int) {
	if scrapeSessionsTotal == nil {
		return
	}
	result := "success"
	if !succeeded {
		result = "failure"
	}
	scrapeSessionsTotal.WithLabelValues(result).Inc()
	if records > 0 {
		scrapeRecordsTotal.Add(float64(records))
	}
}

// ObserveCartCapture counts one cart capture attempt.
func ObserveCartCapture(succeeded bool) {
	if cartCapturesTotal == nil {
		return
	}
	result := "success"
	if !succeeded {
		result = "failure"
	}
	cartCapturesTotal.WithLabelValues(result).Inc()
}
