package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_cache_requests_total",
			Help: "Task cache lookups by result (hit, miss, error) and skipped stale fills",
		},
		[]string{"result"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_events_published_total",
			Help: "Task events handed to the producer by type and outcome",
		},
		[]string{"type", "outcome"},
	)
	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_events_consumed_total",
			Help: "Task events processed by the worker by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
	prometheus.MustRegister(CacheRequests)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsConsumed)
}
