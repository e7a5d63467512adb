// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntakeSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_submissions_total",
			Help: "Webhook submissions by outcome (accepted, rejected, transport_failure, unauthorized, bad_request)",
		},
		[]string{"outcome"},
	)

	RelayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Relay requests handled by the worker, by command and result code",
		},
		[]string{"command", "code"},
	)

	RelayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Duration of relay request handling in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"command"},
	)

	WorkerMessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_messages_posted_total",
			Help: "Messages posted to applicant channels",
		},
	)

	WorkerChannelsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_channels_created_total",
			Help: "Applicant channels created",
		},
	)

	WorkerImageResolutionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_image_resolution_failures_total",
			Help: "Character image lookups that failed; the summary was posted without a thumbnail",
		},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)
