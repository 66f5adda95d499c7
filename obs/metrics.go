package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the execution pipeline.
type Metrics struct {
	TasksQueued     prometheus.Counter
	TasksExecuted   prometheus.Counter
	TasksFailed     prometheus.Counter
	FallbackActions *prometheus.CounterVec
	BatchSize       prometheus.Histogram
	InferenceSec    prometheus.Histogram
}

// NewMetrics registers pipeline metrics on the given registerer.
// A nil registerer uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TasksQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "docroute_tasks_queued_total",
			Help: "Tasks inserted into the priority queue.",
		}),
		TasksExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "docroute_tasks_executed_total",
			Help: "Tasks executed as part of a successful batch.",
		}),
		TasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "docroute_tasks_failed_total",
			Help: "Tasks whose batch failed terminally.",
		}),
		FallbackActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docroute_fallback_actions_total",
			Help: "Fallback actions taken, by action kind.",
		}, []string{"action"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docroute_batch_size",
			Help:    "Number of tasks per executed batch.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
		InferenceSec: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docroute_inference_duration_seconds",
			Help:    "Wall-clock duration of inference invocations.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}
