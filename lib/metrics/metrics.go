// Package metrics exposes Prometheus collectors for the engine.
//
// A nil *Recorder is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace prefixes every metric name (default: "snapoff").
	Namespace string
	// ConstLabels are added to all metrics.
	ConstLabels prometheus.Labels
	// Buckets are the event duration histogram buckets.
	// Default: prometheus.DefBuckets
	Buckets []float64
	// Registry receives the collectors.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures a Recorder.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) { c.Buckets = buckets }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

// Recorder holds the engine's collectors.
type Recorder struct {
	eventsTotal       *prometheus.CounterVec
	eventDuration     *prometheus.HistogramVec
	rendersTotal      *prometheus.CounterVec
	loadsTotal        *prometheus.CounterVec
	instancesCreated  *prometheus.CounterVec
	broadcastsTotal   prometheus.Counter
	broadcastFailures prometheus.Counter
	wsClients         prometheus.Gauge
}

// New registers the collectors and returns a Recorder.
func New(opts ...Option) *Recorder {
	config := Config{
		Namespace: "snapoff",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Recorder{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "events_total",
			Help:        "Total number of component events dispatched",
			ConstLabels: config.ConstLabels,
		}, []string{"component", "event", "status"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "event_duration_seconds",
			Help:        "Event dispatch duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"component"}),

		rendersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "renders_total",
			Help:        "Total number of component renders",
			ConstLabels: config.ConstLabels,
		}, []string{"component", "kind", "outcome"}),

		loadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "component_loads_total",
			Help:        "Component definition lookups by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		instancesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "instances_created_total",
			Help:        "Total number of component instances created",
			ConstLabels: config.ConstLabels,
		}, []string{"component"}),

		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "broadcasts_total",
			Help:        "Total number of fragments broadcast to websocket clients",
			ConstLabels: config.ConstLabels,
		}),

		broadcastFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "broadcast_failures_total",
			Help:        "Total number of failed websocket deliveries",
			ConstLabels: config.ConstLabels,
		}),

		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "ws_clients",
			Help:        "Currently connected broadcast clients",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Event records one dispatched event. status is the HTTP status code text.
func (r *Recorder) Event(component, event, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.eventsTotal.WithLabelValues(component, event, status).Inc()
	r.eventDuration.WithLabelValues(component).Observe(d.Seconds())
}

// Render records a render. kind is "initial" or "rerender"; outcome is
// "ok", "error" or "lost".
func (r *Recorder) Render(component, kind, outcome string) {
	if r == nil {
		return
	}
	r.rendersTotal.WithLabelValues(component, kind, outcome).Inc()
}

// ComponentLoad records a loader lookup: "hit", "miss" or "error".
func (r *Recorder) ComponentLoad(result string) {
	if r == nil {
		return
	}
	r.loadsTotal.WithLabelValues(result).Inc()
}

// InstanceCreated records a new instance of component.
func (r *Recorder) InstanceCreated(component string) {
	if r == nil {
		return
	}
	r.instancesCreated.WithLabelValues(component).Inc()
}

// Broadcast records one broadcast and how many deliveries failed.
func (r *Recorder) Broadcast(failed int) {
	if r == nil {
		return
	}
	r.broadcastsTotal.Inc()
	r.broadcastFailures.Add(float64(failed))
}

// ClientConnected increments the websocket client gauge.
func (r *Recorder) ClientConnected() {
	if r == nil {
		return
	}
	r.wsClients.Inc()
}

// ClientDisconnected decrements the websocket client gauge.
func (r *Recorder) ClientDisconnected() {
	if r == nil {
		return
	}
	r.wsClients.Dec()
}
