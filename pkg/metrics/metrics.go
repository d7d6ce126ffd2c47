package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "procpool_tasks_submitted_total",
			Help: "Total number of tasks accepted by the submit endpoint",
		},
	)

	TasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procpool_tasks_completed_total",
			Help: "Total number of tasks that reached a terminal state, by status",
		},
		[]string{"status"},
	)

	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "procpool_task_duration_seconds",
			Help:    "Wall-clock duration of child processes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
	)

	// Pool metrics
	RunningProcs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "procpool_running_procs",
			Help: "Supervisors currently executing a child process",
		},
	)

	OpenSlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "procpool_open_slots",
			Help: "Execution slots available to the dispatcher",
		},
	)

	QueuedTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "procpool_queued_tasks",
			Help: "Tasks waiting in the queued state bucket",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procpool_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procpool_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksSubmitted)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(RunningProcs)
	prometheus.MustRegister(OpenSlots)
	prometheus.MustRegister(QueuedTasks)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
