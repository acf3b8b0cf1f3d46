// Package metrics exposes Prometheus instrumentation for the orchestration
// core. A single Metrics value is created at startup and threaded into the
// worker pool and orchestrators; all methods are safe on a nil receiver so
// tests can pass nil.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	tasksEnqueued  *prometheus.CounterVec
	tasksCompleted *prometheus.CounterVec
	tasksFailed    *prometheus.CounterVec
	zombiesFound   prometheus.Counter
	loopIterations *prometheus.CounterVec
	loopScore      *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	processing     prometheus.Gauge
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.tasksEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "turbowrap_tasks_enqueued_total",
		Help: "Tasks accepted into the queue, by kind.",
	}, []string{"kind"})
	m.tasksCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "turbowrap_tasks_completed_total",
		Help: "Tasks finished successfully, by kind.",
	}, []string{"kind"})
	m.tasksFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "turbowrap_tasks_failed_total",
		Help: "Tasks finished in failure, by kind.",
	}, []string{"kind"})
	m.zombiesFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "turbowrap_zombie_tasks_total",
		Help: "Processing tasks reclaimed by the zombie scan.",
	})
	m.loopIterations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "turbowrap_loop_iterations_total",
		Help: "Challenger loop iterations executed, by scope.",
	}, []string{"scope"})
	m.loopScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "turbowrap_loop_final_score",
		Help:    "Final satisfaction score of completed challenger loops.",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	}, []string{"scope", "status"})
	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "turbowrap_queue_depth",
		Help: "Tasks waiting in the queue.",
	})
	m.processing = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "turbowrap_tasks_processing",
		Help: "Tasks currently being processed.",
	})

	m.registry.MustRegister(
		m.tasksEnqueued, m.tasksCompleted, m.tasksFailed,
		m.zombiesFound, m.loopIterations, m.loopScore,
		m.queueDepth, m.processing,
	)
	return m
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// TaskEnqueued records a task accepted into the queue.
func (m *Metrics) TaskEnqueued(kind string) {
	if m == nil {
		return
	}
	m.tasksEnqueued.WithLabelValues(kind).Inc()
}

// TaskCompleted records a successful task.
func (m *Metrics) TaskCompleted(kind string) {
	if m == nil {
		return
	}
	m.tasksCompleted.WithLabelValues(kind).Inc()
}

// TaskFailed records a failed task.
func (m *Metrics) TaskFailed(kind string) {
	if m == nil {
		return
	}
	m.tasksFailed.WithLabelValues(kind).Inc()
}

// ZombiesFound records reclaimed zombie tasks.
func (m *Metrics) ZombiesFound(n int) {
	if m == nil || n == 0 {
		return
	}
	m.zombiesFound.Add(float64(n))
}

// LoopIteration records one challenger loop iteration.
func (m *Metrics) LoopIteration(scope string) {
	if m == nil {
		return
	}
	m.loopIterations.WithLabelValues(scope).Inc()
}

// LoopFinished records the final score of a completed loop.
func (m *Metrics) LoopFinished(scope, status string, score int) {
	if m == nil {
		return
	}
	m.loopScore.WithLabelValues(scope, status).Observe(float64(score))
}

// SetQueueDepth updates the waiting-task gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetProcessing updates the processing-task gauge.
func (m *Metrics) SetProcessing(n int) {
	if m == nil {
		return
	}
	m.processing.Set(float64(n))
}
