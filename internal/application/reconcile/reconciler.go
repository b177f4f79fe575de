package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/metrics"
	"github.com/trialsignup/signup/internal/pkg/id"
)

// Event types that trigger a CRM sync.
var syncedEvents = map[string]bool{
	"customer.created":                     true,
	"customer.updated":                     true,
	"customer.subscription.created":        true,
	"customer.subscription.updated":        true,
	"customer.subscription.trial_will_end": true,
}

// EventParser verifies a webhook payload and extracts the event.
type EventParser func(payload []byte, signature, secret string) (*domain.BillingEvent, error)

type ledger interface {
	Record(ctx context.Context, rec *domain.WebhookEventRecord) error
	AttachJob(ctx context.Context, eventID, jobID string) error
}

// ReconcilerDeps holds all dependencies for the Reconciler.
type ReconcilerDeps struct {
	Parse    EventParser
	Secret   string
	Ledger   ledger
	Queue    Queue
	EventTTL time.Duration
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Reconciler turns verified billing webhooks into CRM sync jobs.
type Reconciler struct {
	parse    EventParser
	secret   string
	ledger   ledger
	queue    Queue
	eventTTL time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewReconciler(deps ReconcilerDeps) *Reconciler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		parse:    deps.Parse,
		secret:   deps.Secret,
		ledger:   deps.Ledger,
		queue:    deps.Queue,
		eventTTL: deps.EventTTL,
		metrics:  deps.Metrics,
		now:      now,
	}
}

// HandleEvent verifies and records a webhook delivery and enqueues its sync job.
// Only a signature failure is returned; every other failure is logged so the
// provider still gets a success response and does not redeliver.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := r.parse(payload, signature, r.secret)
	if err != nil {
		r.metrics.IncWebhook("rejected")
		return err
	}
	if !syncedEvents[ev.Type] || ev.CustomerID == "" {
		r.metrics.IncWebhook("ignored")
		return nil
	}

	now := r.now()
	job := domain.SyncJob{
		JobID:          id.New(),
		EventID:        ev.EventID,
		EventType:      ev.Type,
		CustomerID:     ev.CustomerID,
		SubscriptionID: ev.SubscriptionID,
		EnqueuedAt:     now,
	}

	rec := &domain.WebhookEventRecord{
		EventID:    ev.EventID,
		Type:       ev.Type,
		CustomerID: ev.CustomerID,
		ReceivedAt: now.Unix(),
		ExpiresAt:  now.Add(r.eventTTL).Unix(),
	}
	switch err := r.ledger.Record(ctx, rec); {
	case errors.Is(err, domain.ErrDuplicate):
		slog.Info("duplicate webhook ignored", "event_id", ev.EventID)
		r.metrics.IncWebhook("duplicate")
		return nil
	case err != nil:
		slog.Warn("webhook ledger unavailable, syncing without dedupe", "event_id", ev.EventID, "err", err)
	}

	if err := r.queue.Enqueue(ctx, job); err != nil {
		slog.Error("failed to enqueue crm sync", "event_id", ev.EventID, "customer_id", ev.CustomerID, "err", err)
		r.metrics.IncWebhook("enqueue_failed")
		return nil
	}
	if err := r.ledger.AttachJob(ctx, ev.EventID, job.JobID); err != nil {
		slog.Warn("failed to attach job to webhook record", "event_id", ev.EventID, "err", err)
	}
	r.metrics.IncWebhook("accepted")
	return nil
}
