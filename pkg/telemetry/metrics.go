// Package telemetry exposes engine activity as Prometheus metrics.
//
// An Observer subscribes to an engine's event streams and keeps
// counters current; the inspect server (or any promhttp handler)
// serves them. Counters are labeled by engine id so one process hosting
// several guests stays legible; the active-engines gauge is a single
// unlabeled total.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/weld-ui/weld/pkg/engine"
	"github.com/weld-ui/weld/pkg/protocol"
)

// Config configures metric registration.
type Config struct {
	// Namespace is the metrics namespace (default "weld").
	Namespace string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Registry receives the collectors. Nil uses the default
	// registerer.
	Registry prometheus.Registerer
}

// Option tunes a Config.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(ns string) Option {
	return func(c *Config) { c.Namespace = ns }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(r prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = r }
}

// Observer holds the collectors for a set of engines.
type Observer struct {
	batches     *prometheus.CounterVec
	ops         *prometheus.CounterVec
	guestEvents *prometheus.CounterVec
	hostEvents  *prometheus.CounterVec
	errors      *prometheus.CounterVec
	fatals      *prometheus.CounterVec
	engines     prometheus.Gauge
}

// NewObserver registers the weld collectors.
func NewObserver(opts ...Option) *Observer {
	cfg := Config{Namespace: "weld"}
	for _, opt := range opts {
		opt(&cfg)
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Observer{
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "batches_total",
			Help:        "Operation batches received from guests.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"engine"}),
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "operations_total",
			Help:        "Operations received from guests, by type.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"engine", "op"}),
		guestEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "guest_events_total",
			Help:        "Guest→Host events.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"engine"}),
		hostEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "host_events_total",
			Help:        "Host→Guest events.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"engine"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "guest_errors_total",
			Help:        "Survivable guest errors.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"engine"}),
		fatals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "fatal_errors_total",
			Help:        "Fatal errors; each one is a destroyed engine.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"engine"}),
		engines: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "engines_active",
			Help:        "Engines currently alive.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// Observe subscribes the collectors to an engine's events. The
// returned function unsubscribes; the engine's destroy event also
// decrements the active gauge.
func (o *Observer) Observe(e *engine.Engine) func() {
	id := e.ID()
	o.engines.Inc()

	offOp := e.On(engine.EventOperation, func(payload any) {
		batch, ok := payload.(*protocol.Batch)
		if !ok {
			return
		}
		o.batches.WithLabelValues(id).Inc()
		for _, op := range batch.Operations {
			o.ops.WithLabelValues(id, op.Op.String()).Inc()
		}
	})
	offMsg := e.On(engine.EventMessage, func(any) {
		o.guestEvents.WithLabelValues(id).Inc()
	})
	offErr := e.On(engine.EventError, func(any) {
		o.errors.WithLabelValues(id).Inc()
	})
	offFatal := e.On(engine.EventFatalError, func(any) {
		o.fatals.WithLabelValues(id).Inc()
	})
	offDestroy := e.On(engine.EventDestroy, func(any) {
		o.engines.Dec()
	})

	return func() {
		offOp()
		offMsg()
		offErr()
		offFatal()
		offDestroy()
	}
}

// RecordHostEvent counts a Host→Guest event for id.
func (o *Observer) RecordHostEvent(id string) {
	o.hostEvents.WithLabelValues(id).Inc()
}
