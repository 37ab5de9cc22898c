package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metadata resolution outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeFetchError = "fetch_error"
	OutcomeParseError = "parse_error"
	OutcomeCacheHit   = "cache_hit"
)

var (
	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "clipscope_scans_total", Help: "Catalog scans by status"},
		[]string{"status"},
	)
	scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "clipscope_scan_duration_seconds", Help: "Catalog scan latency", Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600}},
		[]string{"status"},
	)
	logBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "clipscope_log_batches_total", Help: "Log range queries by status"},
		[]string{"status"},
	)
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "clipscope_metadata_resolutions_total", Help: "Metadata resolutions by outcome"},
		[]string{"outcome"},
	)
	recordsEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "clipscope_records_emitted_total", Help: "Display records emitted by scans"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "clipscope_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "clipscope_http_request_duration_seconds", Help: "HTTP request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		scansTotal,
		scanDuration,
		logBatchesTotal,
		resolutionsTotal,
		recordsEmittedTotal,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScan records a finished scan.
func ObserveScan(err error, elapsed time.Duration, emitted int) {
	status := statusOf(err)
	scansTotal.WithLabelValues(status).Inc()
	scanDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if err == nil {
		recordsEmittedTotal.Add(float64(emitted))
	}
}

// ObserveLogBatch records one log range query.
func ObserveLogBatch(err error) {
	logBatchesTotal.WithLabelValues(statusOf(err)).Inc()
}

// ObserveResolution records one metadata resolution outcome.
func ObserveResolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one served HTTP request.
func ObserveHTTP(method, route, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
