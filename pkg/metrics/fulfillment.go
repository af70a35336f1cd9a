package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics counts engine outcomes. A nil receiver is a no-op so
// services can run without a registry in tests.
type FulfillmentMetrics struct {
	checkouts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the fulfillment counters on reg.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bazaar_checkouts_total",
		Help: "Checkout attempts by result.",
	}, []string{"result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bazaar_status_transitions_total",
		Help: "Applied state machine transitions.",
	}, []string{"machine", "to"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bazaar_webhooks_total",
		Help: "Inbound webhook deliveries by source and outcome.",
	}, []string{"source", "outcome"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bazaar_side_effect_failures_total",
		Help: "Best-effort side effects that failed and were left for retry.",
	}, []string{"effect"})
	reg.MustRegister(checkouts, transitions, webhooks, sideEffects)
	return &FulfillmentMetrics{
		checkouts:   checkouts,
		transitions: transitions,
		webhooks:    webhooks,
		sideEffects: sideEffects,
	}
}

func (m *FulfillmentMetrics) IncCheckout(result string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *FulfillmentMetrics) IncTransition(machine, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(machine), normalizeLabel(to)).Inc()
}

func (m *FulfillmentMetrics) IncWebhook(source, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (m *FulfillmentMetrics) IncSideEffectFailure(effect string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(effect)).Inc()
}
