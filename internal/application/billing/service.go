package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/metrics"
	"github.com/trialsignup/signup/internal/pkg/contact"
	"github.com/trialsignup/signup/internal/pkg/id"
	"github.com/trialsignup/signup/internal/pkg/validate"
)

// trialEndTolerance bounds how far a client-computed trial end may drift from
// the offer's trial length before it is ignored.
const trialEndTolerance = time.Hour

// Stage names used for metrics and logs.
const (
	StageEnsureCustomer = "ensure_customer"
	StageSetupIntent    = "setup_intent"
	StageConfirmSetup   = "confirm_setup"
	StageStartTrial     = "start_trial"
)

type Service interface {
	Offer() domain.PricingOffer
	EnsureCustomer(ctx context.Context, req domain.EnsureCustomerRequest) (*domain.CustomerResponse, error)
	CreateSetupIntent(ctx context.Context, req domain.SetupIntentRequest) (*domain.SetupIntentResponse, error)
	ConfirmSetup(ctx context.Context, req domain.ConfirmSetupRequest) (*domain.SetupConfirmation, error)
	SetupStatus(ctx context.Context, req domain.SetupStatusRequest) (*domain.SetupConfirmation, error)
	StartTrial(ctx context.Context, req domain.StartTrialRequest) (*domain.TrialSubscription, error)
}

// provider is the billing collaborator.
type provider interface {
	FindCustomerByEmail(email string) (*domain.Customer, error)
	CreateCustomer(req domain.EnsureCustomerRequest, idempotencyKey string) (*domain.Customer, error)
	UpdateCustomer(customerID string, req domain.EnsureCustomerRequest) (*domain.Customer, error)
	CreateSetupIntent(customerID, idempotencyKey string) (string, error)
	ConfirmSetup(clientSecret, paymentMethodID string) (*domain.SetupConfirmation, error)
	SetupStatus(clientSecret string) (*domain.SetupConfirmation, error)
	ActiveTrial(customerID, priceID string) (*domain.TrialSubscription, error)
	StartTrial(req domain.StartTrialRequest, trialEnd int64, idempotencyKey string) (*domain.TrialSubscription, error)
}

// ServiceDeps holds all dependencies for the billing service.
type ServiceDeps struct {
	Provider provider
	Offer    domain.PricingOffer
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

type service struct {
	provider provider
	offer    domain.PricingOffer
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{provider: deps.Provider, offer: deps.Offer, metrics: deps.Metrics, now: now}
}

func (s *service) Offer() domain.PricingOffer { return s.offer }

// EnsureCustomer reuses the customer registered under the email, refreshing its
// contact fields, or creates one.
func (s *service) EnsureCustomer(ctx context.Context, req domain.EnsureCustomerRequest) (resp *domain.CustomerResponse, err error) {
	defer s.observe(StageEnsureCustomer, s.now(), &err)

	req.Email = contact.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	req.Phone = contact.E164(contact.NormalizePhone(req.Phone))

	existing, err := s.provider.FindCustomerByEmail(req.Email)
	switch {
	case err == nil:
		if _, err := s.provider.UpdateCustomer(existing.ID, req); err != nil {
			return nil, err
		}
		slog.Info("reusing billing customer", "customer_id", existing.ID, "affiliate_id", req.AffiliateID)
		return &domain.CustomerResponse{CustomerID: existing.ID}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	c, err := s.provider.CreateCustomer(req, id.IdempotencyKey())
	if err != nil {
		return nil, err
	}
	slog.Info("billing customer created", "customer_id", c.ID, "affiliate_id", req.AffiliateID)
	return &domain.CustomerResponse{CustomerID: c.ID, Created: true}, nil
}

func (s *service) CreateSetupIntent(ctx context.Context, req domain.SetupIntentRequest) (resp *domain.SetupIntentResponse, err error) {
	defer s.observe(StageSetupIntent, s.now(), &err)

	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	secret, err := s.provider.CreateSetupIntent(req.CustomerID, id.IdempotencyKey())
	if err != nil {
		return nil, err
	}
	return &domain.SetupIntentResponse{ClientSecret: secret}, nil
}

// ConfirmSetup confirms a setup intent on behalf of a headless payment widget.
// Declines come back in the confirmation rather than as an error.
func (s *service) ConfirmSetup(ctx context.Context, req domain.ConfirmSetupRequest) (conf *domain.SetupConfirmation, err error) {
	defer s.observe(StageConfirmSetup, s.now(), &err)

	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	conf, err = s.provider.ConfirmSetup(req.ClientSecret, req.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	if conf.DeclineCode != "" {
		slog.Info("payment method declined", "decline_code", conf.DeclineCode)
	}
	return conf, nil
}

func (s *service) SetupStatus(ctx context.Context, req domain.SetupStatusRequest) (*domain.SetupConfirmation, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	return s.provider.SetupStatus(req.ClientSecret)
}

// StartTrial activates the trial subscription for a confirmed payment method.
// An existing trialing or active subscription on the same price is returned instead
// of creating another.
func (s *service) StartTrial(ctx context.Context, req domain.StartTrialRequest) (sub *domain.TrialSubscription, err error) {
	defer s.observe(StageStartTrial, s.now(), &err)

	if req.PriceID == "" {
		req.PriceID = s.offer.PriceID
	}
	if req.TrialDays == 0 {
		req.TrialDays = s.offer.TrialDays
	}
	req.Email = contact.NormalizeEmail(req.Email)
	req.Phone = contact.E164(contact.NormalizePhone(req.Phone))
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	if req.PriceID != s.offer.PriceID {
		return nil, fmt.Errorf("unknown price %s: %w", req.PriceID, domain.ErrBadRequest)
	}

	existing, err := s.provider.ActiveTrial(req.CustomerID, req.PriceID)
	switch {
	case err == nil:
		slog.Warn("subscription already exists, reusing", "customer_id", req.CustomerID, "subscription_id", existing.SubscriptionID)
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	trialEnd := s.acceptedTrialEnd(req.TrialEnd)
	sub, err = s.provider.StartTrial(req, trialEnd, id.IdempotencyKey())
	if err != nil {
		return nil, err
	}
	slog.Info("trial started", "customer_id", req.CustomerID, "subscription_id", sub.SubscriptionID, "affiliate_id", req.AffiliateID)
	return sub, nil
}

// acceptedTrialEnd returns the client trial end when it is within tolerance of
// now plus the offer's trial length, else 0 so the offer's trial days apply.
func (s *service) acceptedTrialEnd(requested int64) int64 {
	if requested == 0 {
		return 0
	}
	expected := s.now().Add(s.offer.TrialLength())
	drift := time.Unix(requested, 0).Sub(expected)
	if drift < 0 {
		drift = -drift
	}
	if drift > trialEndTolerance {
		slog.Warn("ignoring client trial end", "requested", requested, "expected", expected.Unix())
		return 0
	}
	return requested
}

func (s *service) observe(stage string, start time.Time, err *error) {
	s.metrics.ObserveStage(stage, s.now().Sub(start), *err)
	if *err != nil {
		slog.Warn("billing stage failed", "stage", stage, "err", *err)
	}
}
