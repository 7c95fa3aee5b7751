package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records credit ledger, quota gate, and webhook outcomes.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	mutations *prometheus.CounterVec
	debits    *prometheus.CounterVec
	unbilled  *prometheus.CounterVec
	webhooks  *prometheus.CounterVec
	actions   *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_mutations_total",
		Help: "Committed balance mutations by transaction kind.",
	}, []string{"kind"})
	debits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_debits_total",
		Help: "Single-credit debit attempts by result.",
	}, []string{"result"})
	unbilled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_unbilled_total",
		Help: "Metered actions delivered without a committed debit.",
	}, []string{"reason"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment webhook deliveries by event and outcome.",
	}, []string{"event", "outcome"})
	actions := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quota_action_duration_seconds",
		Help:    "Duration of metered actions run behind the quota gate.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(mutations, debits, unbilled, webhooks, actions)
	return &LedgerMetrics{
		mutations: mutations,
		debits:    debits,
		unbilled:  unbilled,
		webhooks:  webhooks,
		actions:   actions,
	}
}

func (m *LedgerMetrics) IncMutation(kind string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *LedgerMetrics) IncDebit(result string) {
	if m == nil || m.debits == nil {
		return
	}
	m.debits.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *LedgerMetrics) IncUnbilled(reason string) {
	if m == nil || m.unbilled == nil {
		return
	}
	m.unbilled.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LedgerMetrics) IncWebhook(event, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

// ObserveAction records how long a metered action took.
func (m *LedgerMetrics) ObserveAction(outcome string, duration time.Duration) {
	if m == nil || m.actions == nil {
		return
	}
	m.actions.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
