// Package metrics exposes session activity as Prometheus metrics.
//
// A nil *Collector is valid and records nothing, so sessions can call it
// unconditionally.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "workset"

// Collector holds the metrics shared by all sessions of a factory.
type Collector struct {
	sessions prometheus.Gauge
	loads    *prometheus.CounterVec
	hits     *prometheus.CounterVec
	actions  *prometheus.CounterVec
	flushes  *prometheus.HistogramVec
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// metrics unregistered, which is useful in tests.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Number of sessions currently holding a connection.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Rows loaded from the store by find, by entity and result.",
		}, []string{"entity", "result"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_map_hits_total",
			Help:      "Finds answered from the identity map without a store round trip.",
		}, []string{"entity"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Row writes executed, by action kind and entity.",
		}, []string{"kind", "entity"}),
		flushes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent executing the action queue.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		return c, nil
	}
	var err error
	if c.sessions, err = register(reg, c.sessions); err != nil {
		return nil, err
	}
	if c.loads, err = register(reg, c.loads); err != nil {
		return nil, err
	}
	if c.hits, err = register(reg, c.hits); err != nil {
		return nil, err
	}
	if c.actions, err = register(reg, c.actions); err != nil {
		return nil, err
	}
	if c.flushes, err = register(reg, c.flushes); err != nil {
		return nil, err
	}
	return c, nil
}

// register adds col to reg, reusing an identical collector that is already
// registered.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return col, nil
}

// SessionOpened counts a session that acquired its connection.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessions.Inc()
}

// SessionClosed counts a session that released its connection.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessions.Dec()
}

// Load records a store load for entity.
func (c *Collector) Load(entity string, found bool) {
	if c == nil {
		return
	}
	result := "found"
	if !found {
		result = "absent"
	}
	c.loads.WithLabelValues(entity, result).Inc()
}

// Hit records a find served from the identity map.
func (c *Collector) Hit(entity string) {
	if c == nil {
		return
	}
	c.hits.WithLabelValues(entity).Inc()
}

// Action records an executed row write.
func (c *Collector) Action(kind, entity string) {
	if c == nil {
		return
	}
	c.actions.WithLabelValues(kind, entity).Inc()
}

// ObserveFlush records the duration of one queue execution.
func (c *Collector) ObserveFlush(d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.flushes.WithLabelValues(outcome).Observe(d.Seconds())
}
