// Package metrics exposes a Prometheus collector and HTTP endpoint over
// a tasking.Runtime's counters. It mirrors the teacher's monitoring
// package: a custom prometheus.Registry, one struct per metric group,
// and promhttp.HandlerFor serving the registry rather than the global
// default one.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

// Config controls where the exposition endpoint listens.
type Config struct {
	Listen string
	Path   string
}

// Collector pulls a point-in-time snapshot from a tasking.Runtime on
// every Prometheus scrape rather than being pushed into by the
// runtime's own goroutines, keeping pkg/tasking free of a metrics
// library dependency.
type Collector struct {
	rt *tasking.Runtime

	tasksExecuted   *prometheus.Desc
	stealsAttempted *prometheus.Desc
	stealsSucceeded *prometheus.Desc
	queueDepth      *prometheus.Desc
	reclaimedTotal  *prometheus.Desc
	taskPanicsTotal *prometheus.Desc
	epochLag        *prometheus.Desc
}

// NewCollector builds a Collector reading from rt. Register it on a
// prometheus.Registry with registry.MustRegister.
func NewCollector(rt *tasking.Runtime) *Collector {
	return &Collector{
		rt: rt,
		tasksExecuted: prometheus.NewDesc(
			"mxtasking_worker_tasks_executed_total",
			"Total tasks executed by a worker.",
			[]string{"worker", "numa_node"}, nil),
		stealsAttempted: prometheus.NewDesc(
			"mxtasking_worker_steals_attempted_total",
			"Total steal attempts made by a worker.",
			[]string{"worker", "numa_node"}, nil),
		stealsSucceeded: prometheus.NewDesc(
			"mxtasking_worker_steals_succeeded_total",
			"Total successful steals made by a worker.",
			[]string{"worker", "numa_node"}, nil),
		queueDepth: prometheus.NewDesc(
			"mxtasking_worker_queue_depth",
			"Current local queue depth for a worker, by priority.",
			[]string{"worker", "numa_node", "priority"}, nil),
		reclaimedTotal: prometheus.NewDesc(
			"mxtasking_epoch_reclaimed_total",
			"Total garbage objects reclaimed across all epoch advances.",
			nil, nil),
		taskPanicsTotal: prometheus.NewDesc(
			"mxtasking_task_panics_total",
			"Total task bodies that panicked and were recovered.",
			nil, nil),
		epochLag: prometheus.NewDesc(
			"mxtasking_epoch_lag",
			"Difference between the global epoch and the oldest non-quiescent worker epoch.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasksExecuted
	ch <- c.stealsAttempted
	ch <- c.stealsSucceeded
	ch <- c.queueDepth
	ch <- c.reclaimedTotal
	ch <- c.taskPanicsTotal
	ch <- c.epochLag
}

// Collect implements prometheus.Collector, snapshotting rt.Stats on
// every scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.rt.Stats()

	ch <- prometheus.MustNewConstMetric(c.reclaimedTotal, prometheus.CounterValue, float64(stats.ReclaimedTotal))
	ch <- prometheus.MustNewConstMetric(c.taskPanicsTotal, prometheus.CounterValue, float64(stats.TaskPanicsTotal))
	ch <- prometheus.MustNewConstMetric(c.epochLag, prometheus.GaugeValue, float64(stats.EpochLag))

	for _, w := range stats.Workers {
		worker := fmt.Sprintf("%d", w.WorkerID)
		node := fmt.Sprintf("%d", w.NUMANode)

		ch <- prometheus.MustNewConstMetric(c.tasksExecuted, prometheus.CounterValue, float64(w.TasksExecuted), worker, node)
		ch <- prometheus.MustNewConstMetric(c.stealsAttempted, prometheus.CounterValue, float64(w.StealsAttempted), worker, node)
		ch <- prometheus.MustNewConstMetric(c.stealsSucceeded, prometheus.CounterValue, float64(w.StealsSucceeded), worker, node)

		for priority, depth := range w.QueueDepth {
			ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(depth), worker, node, priorityLabel(priority))
		}
	}
}

func priorityLabel(p int) string {
	switch p {
	case int(tasking.PriorityHigh):
		return "high"
	case int(tasking.PriorityBackground):
		return "background"
	default:
		return "normal"
	}
}

// Server wraps the HTTP endpoint that exposes a Collector's registry.
type Server struct {
	cfg    Config
	logger zerolog.Logger
	srv    *http.Server
}

// NewServer builds a Server that will serve rt's metrics at cfg.Path
// once Start is called.
func NewServer(cfg Config, rt *tasking.Runtime, logger zerolog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(rt))

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		cfg:    cfg,
		logger: logger,
		srv: &http.Server{
			Addr:    cfg.Listen,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in its own goroutine, logging
// ListenAndServe's terminal error rather than propagating it — a
// metrics endpoint failing to bind should not take the runtime down.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Str("addr", s.cfg.Listen).Msg("metrics server stopped")
		}
	}()
}

// Shutdown gracefully stops the HTTP server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
