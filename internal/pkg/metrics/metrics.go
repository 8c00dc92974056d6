// Package metrics defines Prometheus collectors for the API and the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeforge_http_requests_total",
		Help: "HTTP requests by method, route template and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storeforge_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeforge_worker_tasks_total",
		Help: "Worker task deliveries by task name and outcome (ok, retry, exhausted).",
	}, []string{"task", "outcome"})

	TaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storeforge_worker_task_duration_seconds",
		Help:    "Task handling duration by task name.",
		Buckets: []float64{1, 5, 15, 60, 120, 300, 600, 900, 1300},
	}, []string{"task"})

	HelmCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeforge_helm_commands_total",
		Help: "External helm invocations by subcommand and outcome (ok, error, timeout).",
	}, []string{"command", "outcome"})
)
