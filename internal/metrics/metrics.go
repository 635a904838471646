// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Commands counts light-state dispatches by result ("ok" or "error").
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discod_commands_total",
			Help: "Light state commands sent to the bridge, by result.",
		},
		[]string{"result"},
	)

	Cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "discod_cycles_total",
		Help: "Completed modulation cycles across all tasks.",
	})

	TasksRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "discod_tasks_running",
		Help: "Modulation tasks currently running.",
	})

	Rebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "discod_rebuilds_total",
		Help: "Task set rebuilds.",
	})
)

func init() {
	prometheus.MustRegister(Commands, Cycles, TasksRunning, Rebuilds)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
