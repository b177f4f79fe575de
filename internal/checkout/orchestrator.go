package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/trialsignup/signup/internal/domain"
)

// SignupSource tags customers created by this checkout.
const SignupSource = "checkout"

// TrialResult is the start-trial answer, with the optional handoff token.
type TrialResult struct {
	domain.TrialSubscription
	HandoffToken string `json:"handoff_token,omitempty"`
}

// Billing is the provisioning API the orchestrator drives.
type Billing interface {
	EnsureCustomer(ctx context.Context, req domain.EnsureCustomerRequest) (*domain.CustomerResponse, error)
	CreateSetupIntent(ctx context.Context, req domain.SetupIntentRequest) (*domain.SetupIntentResponse, error)
	StartTrial(ctx context.Context, req domain.StartTrialRequest) (*TrialResult, error)
}

// PaymentWidget confirms a setup intent with the payment details it collected.
// CompleteAction drives a provider challenge to its end and reports the final status.
type PaymentWidget interface {
	Confirm(ctx context.Context, clientSecret string) (*domain.SetupConfirmation, error)
	CompleteAction(ctx context.Context, clientSecret string, pending *domain.SetupConfirmation) (*domain.SetupConfirmation, error)
}

// OrchestratorDeps holds all dependencies for the Orchestrator.
type OrchestratorDeps struct {
	Billing Billing
	Widget  PaymentWidget
	Offer   domain.PricingOffer
	Now     func() time.Time
}

// Outcome is a completed provisioning run.
type Outcome struct {
	State        domain.ProvisioningState
	HandoffToken string
}

// Orchestrator runs customer, setup intent, confirmation and trial strictly
// in sequence. No stage is retried; a rerun starts from the top.
type Orchestrator struct {
	billing Billing
	widget  PaymentWidget
	offer   domain.PricingOffer
	now     func() time.Time
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{billing: deps.Billing, widget: deps.Widget, offer: deps.Offer, now: deps.Now}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Run provisions a trial for data. The attribution id is attached to both the
// customer and the subscription.
func (o *Orchestrator) Run(ctx context.Context, data domain.Step1Data, affiliateID string) (*Outcome, error) {
	if affiliateID == "" {
		affiliateID = domain.AttributionNone
	}
	log := slog.With("email", data.Email, "affiliate_id", affiliateID)
	var state domain.ProvisioningState

	cust, err := o.billing.EnsureCustomer(ctx, domain.EnsureCustomerRequest{
		Email:       data.Email,
		FirstName:   data.FirstName,
		LastName:    data.LastName,
		Phone:       data.Phone,
		ZipCode:     data.ZipCode,
		AffiliateID: affiliateID,
		Metadata:    map[string]string{"signup_source": SignupSource},
	})
	if err != nil {
		return nil, o.abort(log, ProvisioningFailed, StageEnsureCustomer, err)
	}
	state.CustomerID = cust.CustomerID
	log = log.With("customer_id", state.CustomerID)

	intent, err := o.billing.CreateSetupIntent(ctx, domain.SetupIntentRequest{CustomerID: state.CustomerID})
	if err != nil {
		return nil, o.abort(log, ProvisioningFailed, StageSetupIntent, err)
	}
	state.SetupClientSecret = intent.ClientSecret

	conf, err := o.confirm(ctx, state.SetupClientSecret)
	if err != nil {
		var pe *ProvisioningError
		if errors.As(err, &pe) {
			log.Warn("payment confirmation failed", "kind", pe.Kind, "decline_code", pe.DeclineCode, "err", pe.Err)
			return nil, err
		}
		return nil, o.abort(log, PaymentSetupFailed, StageConfirmSetup, err)
	}
	state.PaymentMethodID = conf.PaymentMethodID
	state.ConfirmedAt = o.now()
	state.TrialEnd = state.ConfirmedAt.Add(o.offer.TrialLength())

	sub, err := o.billing.StartTrial(ctx, domain.StartTrialRequest{
		CustomerID:      state.CustomerID,
		PaymentMethodID: state.PaymentMethodID,
		PriceID:         o.offer.PriceID,
		TrialDays:       o.offer.TrialDays,
		TrialEnd:        state.TrialEnd.Unix(),
		AffiliateID:     affiliateID,
		Email:           data.Email,
		FirstName:       data.FirstName,
		LastName:        data.LastName,
		Phone:           data.Phone,
	})
	if err != nil {
		return nil, o.abort(log, ProvisioningFailed, StageStartTrial, err)
	}
	state.SubscriptionID = sub.SubscriptionID
	state.SubscriptionState = sub.Status
	if sub.Reused && sub.TrialEnd > 0 {
		state.TrialEnd = time.Unix(sub.TrialEnd, 0).UTC()
	}

	log.Info("trial provisioned", "subscription_id", state.SubscriptionID, "status", state.SubscriptionState, "reused", sub.Reused)
	return &Outcome{State: state, HandoffToken: sub.HandoffToken}, nil
}

// confirm treats immediate success and success after a challenge alike. Any
// other terminal status fails the stage.
func (o *Orchestrator) confirm(ctx context.Context, clientSecret string) (*domain.SetupConfirmation, error) {
	conf, err := o.widget.Confirm(ctx, clientSecret)
	if err != nil {
		return nil, confirmError(err)
	}
	if conf.Status == domain.SetupRequiresAction {
		conf, err = o.widget.CompleteAction(ctx, clientSecret, conf)
		if err != nil {
			return nil, confirmError(err)
		}
	}
	switch {
	case conf.Status == domain.SetupSucceeded && conf.PaymentMethodID != "":
		return conf, nil
	case conf.DeclineCode != "":
		return nil, &ProvisioningError{
			Kind:        PaymentDeclined,
			Stage:       StageConfirmSetup,
			DeclineCode: conf.DeclineCode,
			Err:         fmt.Errorf("card declined: %s", conf.ErrorMessage),
		}
	default:
		return nil, &ProvisioningError{
			Kind:  PaymentSetupFailed,
			Stage: StageConfirmSetup,
			Err:   fmt.Errorf("setup ended with status %q", conf.Status),
		}
	}
}

func confirmError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusPaymentRequired {
		return &ProvisioningError{Kind: PaymentDeclined, Stage: StageConfirmSetup, DeclineCode: apiErr.Code, Err: err}
	}
	return &ProvisioningError{Kind: PaymentSetupFailed, Stage: StageConfirmSetup, Err: err}
}

func (o *Orchestrator) abort(log *slog.Logger, kind FailureKind, stage string, err error) error {
	log.Error("provisioning stage failed", "stage", stage, "err", err)
	return &ProvisioningError{Kind: kind, Stage: stage, Err: err}
}
