package slotengine

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the slot engine's optional Prometheus instrumentation
// (SPEC_FULL §1.3). A nil *Metrics is valid everywhere below and simply
// skips recording — metrics are observability, never a correctness gate.
type Metrics struct {
	allocated     prometheus.Counter
	allocateFails prometheus.Counter
	published     prometheus.Counter
	lossySteals   prometheus.Counter
	acquired      prometheus.Counter
	released      prometheus.Counter
	recoveries    prometheus.Counter
}

// NewMetrics registers the slot engine's counters under the given labels
// (interface id, instance specifier, event id) on reg. Pass a nil
// prometheus.Registerer to opt out entirely.
func NewMetrics(reg prometheus.Registerer, interfaceID, instance, event string) *Metrics {
	if reg == nil {
		return nil
	}
	labels := prometheus.Labels{"interface": interfaceID, "instance": instance, "event": event}
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "lola",
			Subsystem:   "slotengine",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(c)
		return c
	}
	return &Metrics{
		allocated:     counter("slots_allocated_total", "Slots successfully allocated."),
		allocateFails: counter("allocate_failed_total", "Allocate calls that found no free slot."),
		published:     counter("samples_published_total", "Samples published."),
		lossySteals:   counter("lossy_steals_total", "Allocations served by stealing the oldest Ready slot."),
		acquired:      counter("samples_acquired_total", "Samples acquired by a subscriber."),
		released:      counter("samples_released_total", "Samples released by a subscriber."),
		recoveries:    counter("recovery_passes_total", "Transaction-log recovery passes run."),
	}
}

func (m *Metrics) incAllocated() {
	if m != nil {
		m.allocated.Inc()
	}
}
func (m *Metrics) incAllocateFailed() {
	if m != nil {
		m.allocateFails.Inc()
	}
}
func (m *Metrics) incPublished() {
	if m != nil {
		m.published.Inc()
	}
}
func (m *Metrics) incLossySteal() {
	if m != nil {
		m.lossySteals.Inc()
	}
}
func (m *Metrics) incAcquired() {
	if m != nil {
		m.acquired.Inc()
	}
}
func (m *Metrics) incReleased() {
	if m != nil {
		m.released.Inc()
	}
}
func (m *Metrics) incRecovery() {
	if m != nil {
		m.recoveries.Inc()
	}
}
