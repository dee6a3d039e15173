package workerpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --------------------------------
// Metrics
// --------------------------------

var (
	jobsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ustreamerd_pool_jobs_dispatched_total",
		Help: "Jobs handed to an idle worker",
	})

	jobsBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ustreamerd_pool_jobs_busy_total",
		Help: "Submissions rejected because every worker was occupied",
	})

	jobsThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ustreamerd_pool_jobs_throttled_total",
		Help: "Submissions dropped by the desired-interval throttle",
	})

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ustreamerd_pool_job_duration_seconds",
			Help:    "RunFunc execution time per worker",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker"},
	)
)
