// Package metrics counts page lifecycle events seen on the bus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kdex-tech/kdex-pageview/internal/bus"
)

type Subscriber interface {
	Subscribe(handler bus.Handler, topics ...bus.Topic) bus.Subscription
}

type Metrics struct {
	Failures prometheus.Counter
	Loaded   prometheus.Gauge
	Loads    prometheus.Counter
	Unloads  prometheus.Counter

	mu     sync.Mutex
	loaded map[int]bool
}

func New(reg prometheus.Registerer, document string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"document": document}
	return &Metrics{
		loaded: map[int]bool{},
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "pageview_page_failures_total",
			Help:        "Pages that failed to load.",
			ConstLabels: labels,
		}),
		Loaded: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "pageview_pages_loaded",
			Help:        "Pages currently loaded.",
			ConstLabels: labels,
		}),
		Loads: factory.NewCounter(prometheus.CounterOpts{
			Name:        "pageview_page_loads_total",
			Help:        "Pages that finished loading.",
			ConstLabels: labels,
		}),
		Unloads: factory.NewCounter(prometheus.CounterOpts{
			Name:        "pageview_page_unloads_total",
			Help:        "Loaded pages that were unloaded.",
			ConstLabels: labels,
		}),
	}
}

// Observe keeps the metrics in step with the page broadcasts on b. An unload
// only counts for a page whose load was seen: a superseded load is released
// with a pageunload that never had a pageload.
func (m *Metrics) Observe(b Subscriber) bus.Subscription {
	return b.Subscribe(m.handle, bus.TopicPageLoad, bus.TopicPageUnload, bus.TopicPageFail)
}

func (m *Metrics) handle(msg bus.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch msg := msg.(type) {
	case bus.PageLoad:
		m.Loads.Inc()
		if !m.loaded[msg.Page] {
			m.loaded[msg.Page] = true
			m.Loaded.Inc()
		}
	case bus.PageUnload:
		if m.loaded[msg.Page] {
			delete(m.loaded, msg.Page)
			m.Unloads.Inc()
			m.Loaded.Dec()
		}
	case bus.PageFail:
		m.Failures.Inc()
		if m.loaded[msg.Page] {
			delete(m.loaded, msg.Page)
			m.Loaded.Dec()
		}
	}
}
