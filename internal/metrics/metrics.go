package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for provisioning, verification and CRM sync.
// All methods are nil-safe so services can run without metrics in tests.
type Metrics struct {
	// Billing call latencies by stage
	StageLatency *prometheus.HistogramVec

	// Billing call outcomes by stage and result
	StageOutcome *prometheus.CounterVec

	// Verification verdicts by field and status
	Verdicts *prometheus.CounterVec

	// CRM sync outcomes
	SyncOutcome *prometheus.CounterVec

	// Webhook deliveries by outcome
	Webhooks *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signup_billing_stage_duration_seconds",
			Help:    "Duration of billing collaborator calls by stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}), // stage: "ensure_customer", "setup_intent", "start_trial"

		StageOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_billing_stage_total",
			Help: "Billing collaborator call outcomes by stage",
		}, []string{"stage", "outcome"}),

		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_verification_verdicts_total",
			Help: "Contact verification verdicts by field, status and kind",
		}, []string{"field", "status", "kind"}),

		SyncOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_crm_sync_total",
			Help: "CRM reconciliation outcomes",
		}, []string{"outcome"}),

		Webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_webhook_events_total",
			Help: "Billing webhook deliveries by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveStage records the duration and outcome of a billing call.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.StageOutcome.WithLabelValues(stage, outcome).Inc()
}

// IncVerdict records a verification verdict.
func (m *Metrics) IncVerdict(field, status, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.Verdicts.WithLabelValues(field, status, kind).Inc()
}

// IncSync records a CRM sync outcome.
func (m *Metrics) IncSync(outcome string) {
	if m != nil {
		m.SyncOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncWebhook records a webhook delivery outcome.
func (m *Metrics) IncWebhook(outcome string) {
	if m != nil {
		m.Webhooks.WithLabelValues(outcome).Inc()
	}
}
