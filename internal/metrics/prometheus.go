// internal/metrics/prometheus.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	feedIngestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_ingestions_total",
			Help: "Feed ingestion runs by result kind.",
		},
		[]string{"trigger", "result"},
	)
	feedIngestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_ingestion_duration_seconds",
			Help:    "Duration of feed ingestion runs from fetch to commit.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"trigger"},
	)
	feedOffersIngested = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_offers_ingested",
			Help: "Number of offers written by the last successful ingestion.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(feedIngestionsTotal)
	prometheus.MustRegister(feedIngestionDuration)
	prometheus.MustRegister(feedOffersIngested)
}

// RecordRequest records metrics for one HTTP request.
func RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordIngestion records one ingestion run. result is "ok" or an error kind.
func RecordIngestion(trigger, result string, offers int, duration time.Duration) {
	feedIngestionsTotal.WithLabelValues(trigger, result).Inc()
	feedIngestionDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	if result == "ok" {
		feedOffersIngested.Set(float64(offers))
	}
}

func classifyStatus(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		return "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		return "4xx"
	} else if statusCode >= 500 && statusCode < 600 {
		return "5xx"
	}
	return "unknown"
}

func Handler() http.Handler {
	return promhttp.Handler()
}
