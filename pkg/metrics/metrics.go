// Package metrics exports cell propagation and loop activity to Prometheus.
//
// A Collector is both a cell.Observer and a loop.Hooks:
//
//	m := metrics.New(metrics.WithRegistry(reg))
//	cell.SetObserver(m)
//	l := loop.New(loop.WithHooks(m))
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/cellkit/pkg/cell"
	"github.com/vango-dev/cellkit/pkg/loop"
)

// Label used for cells created without cell.Named.
const anonymous = "anonymous"

// Config configures the Prometheus collector.
type Config struct {
	// Namespace is the metrics namespace (default: "cellkit").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch and task durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "cellkit",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the Prometheus metrics.
type Collector struct {
	dispatches        *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	cascadeDepth      prometheus.Histogram
	recomputeFailures *prometheus.CounterVec

	tasksPosted  prometheus.Counter
	tasksDropped prometheus.Counter
	taskPanics   prometheus.Counter
	taskDuration prometheus.Histogram

	// depth of the synchronous cascade currently dispatching; cells are
	// single-threaded so no lock is needed.
	depth int
}

var (
	_ cell.Observer = (*Collector)(nil)
	_ loop.Hooks    = (*Collector)(nil)
)

// New creates and registers the metrics. Registering twice on the same
// registry panics, as with any promauto factory.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatches_total",
			Help:        "Total number of channel dispatches",
			ConstLabels: config.ConstLabels,
		}, []string{"cell", "channel"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of subscriber callbacks invoked",
			ConstLabels: config.ConstLabels,
		}, []string{"cell", "channel"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Time spent in a channel dispatch, including the cascade it triggers",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"channel"}),

		cascadeDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cascade_depth",
			Help:        "Nesting depth of dispatches within a cascade",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.LinearBuckets(1, 1, 10),
		}),

		recomputeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recompute_failures_total",
			Help:        "Total number of derived cell evaluations that panicked",
			ConstLabels: config.ConstLabels,
		}, []string{"cell"}),

		tasksPosted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "loop_tasks_posted_total",
			Help:        "Total number of tasks queued on a loop",
			ConstLabels: config.ConstLabels,
		}),

		tasksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "loop_tasks_dropped_total",
			Help:        "Total number of tasks rejected because the queue was full",
			ConstLabels: config.ConstLabels,
		}),

		taskPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "loop_task_panics_total",
			Help:        "Total number of loop tasks that panicked",
			ConstLabels: config.ConstLabels,
		}),

		taskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "loop_task_duration_seconds",
			Help:        "Loop task execution time in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

// BeginDispatch implements cell.Observer.
func (c *Collector) BeginDispatch(info cell.DispatchInfo) func() {
	name := info.Name
	if name == "" {
		name = anonymous
	}
	channel := info.Channel.String()

	c.dispatches.WithLabelValues(name, channel).Inc()
	c.notifications.WithLabelValues(name, channel).Add(float64(info.Subscribers))

	c.depth++
	c.cascadeDepth.Observe(float64(c.depth))
	start := time.Now()

	return func() {
		c.dispatchDuration.WithLabelValues(channel).Observe(time.Since(start).Seconds())
		c.depth--
	}
}

// RecomputeFailed implements cell.Observer.
func (c *Collector) RecomputeFailed(name string, _ error) {
	if name == "" {
		name = anonymous
	}
	c.recomputeFailures.WithLabelValues(name).Inc()
}

// TaskPosted implements loop.Hooks.
func (c *Collector) TaskPosted() {
	c.tasksPosted.Inc()
}

// TaskDropped implements loop.Hooks.
func (c *Collector) TaskDropped() {
	c.tasksDropped.Inc()
}

// TaskDone implements loop.Hooks.
func (c *Collector) TaskDone(d time.Duration, panicked bool) {
	c.taskDuration.Observe(d.Seconds())
	if panicked {
		c.taskPanics.Inc()
	}
}
