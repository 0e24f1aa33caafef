// Package metrics exports interaction counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeusync/grabkit/internal/core/events/bus"
)

const namespace = "grabkit"

var _ bus.EventBusObserver = (*Metrics)(nil)

// Metrics owns a private registry so several scenes in one process, or one
// per test, never collide.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	tickSeconds   prometheus.Histogram
	activeTargets prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Grab and hover events published, by event type.",
		}, []string{"type"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_errors_total",
			Help:      "Event deliveries where at least one handler failed.",
		}, []string{"type"}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one scene tick.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		activeTargets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_targets",
			Help:      "Grab targets that wanted per-tick work after the last tick.",
		}),
	}
	m.registry.MustRegister(m.events, m.handlerErrors, m.tickSeconds, m.activeTargets)
	return m
}

// Registry exposes the underlying registry, e.g. to add host collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnPublish counts each event once, on its default-topic delivery.
func (m *Metrics) OnPublish(topic, eventType string, _ bus.Event) {
	if topic != "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) OnDelivered(topic, eventType string, _ int, err error, _ int64) {
	if topic != "" || err == nil {
		return
	}
	m.handlerErrors.WithLabelValues(eventType).Inc()
}

// ObserveTick records one tick's duration and the active target count.
func (m *Metrics) ObserveTick(d time.Duration, activeTargets int) {
	m.tickSeconds.Observe(d.Seconds())
	m.activeTargets.Set(float64(activeTargets))
}

// StreamSource is what the stream collectors read from.
type StreamSource interface {
	Clients() int
	Dropped() uint64
}

// RegisterStream exports the stream server's client count and drop total.
func (m *Metrics) RegisterStream(s StreamSource) error {
	clients := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "clients",
		Help:      "Connected event stream clients.",
	}, func() float64 { return float64(s.Clients()) })
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "dropped_messages_total",
		Help:      "Messages not queued because a client was too slow.",
	}, func() float64 { return float64(s.Dropped()) })

	if err := m.registry.Register(clients); err != nil {
		return err
	}
	return m.registry.Register(dropped)
}
