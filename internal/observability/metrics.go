package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Fallback kind label values.
const (
	FallbackKindTimeout = "timeout"
	FallbackKindError   = "error"
)

// Collectors bundles the Prometheus metrics the core components emit.
// A nil *Collectors is valid and turns every recording call into a no-op,
// so tests do not need a registry.
type Collectors struct {
	TurnsTotal         prometheus.Counter
	RetryAttemptsTotal prometheus.Counter
	FallbacksTotal     *prometheus.CounterVec
	ToolDispatches     *prometheus.CounterVec
}

// NewRegistry returns a fresh registry preloaded with the standard Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewCollectors creates and registers the collectors on the given registerer.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		TurnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whatspr",
			Name:      "turns_total",
			Help:      "Conversation turns handled.",
		}),
		RetryAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whatspr",
			Name:      "retry_attempts_total",
			Help:      "Run attempts made by the retry orchestrator, including first attempts.",
		}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatspr",
			Name:      "fallbacks_total",
			Help:      "Turns resolved with a synthesized fallback reply.",
		}, []string{"kind"}),
		ToolDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatspr",
			Name:      "tool_dispatches_total",
			Help:      "Tool calls dispatched, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(c.TurnsTotal, c.RetryAttemptsTotal, c.FallbacksTotal, c.ToolDispatches)
	return c
}

// RecordTurn counts one handled turn.
func (c *Collectors) RecordTurn() {
	if c == nil {
		return
	}
	c.TurnsTotal.Inc()
}

// RecordAttempt counts one run attempt.
func (c *Collectors) RecordAttempt() {
	if c == nil {
		return
	}
	c.RetryAttemptsTotal.Inc()
}

// RecordFallback counts one synthesized fallback reply of the given kind.
func (c *Collectors) RecordFallback(kind string) {
	if c == nil {
		return
	}
	c.FallbacksTotal.WithLabelValues(kind).Inc()
}

// RecordToolDispatch counts one tool dispatch with outcome "handled",
// "unhandled", or "failed".
func (c *Collectors) RecordToolDispatch(outcome string) {
	if c == nil {
		return
	}
	c.ToolDispatches.WithLabelValues(outcome).Inc()
}
