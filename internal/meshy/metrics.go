package meshy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ip_studio_conversion_requests_total",
			Help: "Total number of requests to the image-to-3D conversion API.",
		},
		[]string{"operation", "status"}, // operation: create|status, status: success|error|not_found
	)
	conversionRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ip_studio_conversion_request_duration_seconds",
			Help:    "Histogram of conversion API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	conversionJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ip_studio_conversion_jobs_total",
			Help: "Total number of conversion jobs by terminal outcome.",
		},
		[]string{"outcome"}, // succeeded|failed|canceled|timeout|no_artifact
	)
)
