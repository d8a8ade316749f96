// Package metrics exposes the controller's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tugtainer_runs_total",
		Help: "Total number of check/update runs by scope (all, host, group).",
	}, []string{"scope"})
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tugtainer_run_duration_seconds",
		Help:    "Duration of host-scoped check/update runs.",
		Buckets: prometheus.DefBuckets,
	})
	ContainerResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tugtainer_container_results_total",
		Help: "Per-container run outcomes by result.",
	}, []string{"result"})
	UpdatesAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tugtainer_updates_available",
		Help: "Containers with an available update after the last run.",
	})
	HostErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tugtainer_host_errors_total",
		Help: "Host-scoped run failures by host name.",
	}, []string{"host"})
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tugtainer_notifications_sent_total",
		Help: "Total number of dispatched notifications.",
	})
)
