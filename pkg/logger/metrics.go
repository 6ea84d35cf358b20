package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors",
		},
		[]string{"service", "error_type"},
	)

	// StageDuration tracks how long each pipeline stage takes per run
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screener_stage_duration_seconds",
			Help:    "Duration of screener pipeline stages in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	// RowsDropped counts rows removed by a stage
	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_rows_dropped_total",
			Help: "Rows removed by screener pipeline stages",
		},
		[]string{"stage", "reason"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_upstream_requests_total",
			Help: "Requests sent to the market data provider",
		},
		[]string{"endpoint", "status"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_cache_lookups_total",
			Help: "Enrichment cache lookups by outcome",
		},
		[]string{"cache", "result"},
	)

	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_scheduled_runs_total",
			Help: "Scheduled rule runs by outcome",
		},
		[]string{"status"},
	)
)
