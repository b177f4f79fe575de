package http

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trialsignup/signup/internal/application/phoneverify"
	"github.com/trialsignup/signup/internal/application/reconcile"
	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/metrics"
	"github.com/trialsignup/signup/internal/transport/http/handler"
)

// BillingProvider is the billing collaborator the router requires.
type BillingProvider interface {
	FindCustomerByEmail(email string) (*domain.Customer, error)
	CreateCustomer(req domain.EnsureCustomerRequest, idempotencyKey string) (*domain.Customer, error)
	UpdateCustomer(customerID string, req domain.EnsureCustomerRequest) (*domain.Customer, error)
	CreateSetupIntent(customerID, idempotencyKey string) (string, error)
	ConfirmSetup(clientSecret, paymentMethodID string) (*domain.SetupConfirmation, error)
	SetupStatus(clientSecret string) (*domain.SetupConfirmation, error)
	ActiveTrial(customerID, priceID string) (*domain.TrialSubscription, error)
	StartTrial(req domain.StartTrialRequest, trialEnd int64, idempotencyKey string) (*domain.TrialSubscription, error)
}

// EmailChecker is the email verification collaborator.
type EmailChecker interface {
	Check(ctx context.Context, address string) (*domain.EmailCheck, error)
}

// PhoneChecker is the phone verification collaborator.
type PhoneChecker interface {
	Check(ctx context.Context, e164, name string) (*domain.PhoneCheck, error)
}

// VerdictCache is the shared cache of classified verdicts.
type VerdictCache interface {
	Get(ctx context.Context, field, value string) (*domain.ValidationResult, bool, error)
	Set(ctx context.Context, field, value string, res domain.ValidationResult) error
}

// WebhookLedger is the minimal interface the router requires from the webhook dedupe store.
type WebhookLedger interface {
	Record(ctx context.Context, rec *domain.WebhookEventRecord) error
	AttachJob(ctx context.Context, eventID, jobID string) error
}

// Deps holds all infrastructure dependencies for the router.
// VerdictCache, HandoffSigner and Readiness may be nil.
type Deps struct {
	Billing       BillingProvider
	EventParser   reconcile.EventParser
	Email         EmailChecker
	Phone         PhoneChecker
	VerdictCache  VerdictCache
	PhoneVerifier phoneverify.Verifier
	WebhookLedger WebhookLedger
	SyncQueue     reconcile.Queue
	HandoffSigner handler.HandoffSigner
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Readiness     map[string]handler.ReadinessCheck
}
