package domain

import "time"

// EnsureCustomerRequest is the ensure-customer call body.
type EnsureCustomerRequest struct {
	Email       string            `json:"email" validate:"required,email"`
	FirstName   string            `json:"first_name" validate:"required,max=128"`
	LastName    string            `json:"last_name" validate:"required,max=128"`
	Phone       string            `json:"phone" validate:"required,phone_digits"`
	ZipCode     string            `json:"zip_code,omitempty" validate:"omitempty,max=10"`
	AffiliateID string            `json:"affiliate_id" validate:"required"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CustomerResponse is returned by ensure-customer.
type CustomerResponse struct {
	CustomerID string `json:"customer_id"`
	Created    bool   `json:"created"`
}

// SetupIntentRequest is the create-setup-intent call body.
type SetupIntentRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
}

// SetupIntentResponse carries the client secret the payment widget confirms.
type SetupIntentResponse struct {
	ClientSecret string `json:"client_secret"`
}

// SetupStatus is the terminal or intermediate status of a setup confirmation.
type SetupStatus string

const (
	SetupSucceeded             SetupStatus = "succeeded"
	SetupRequiresAction        SetupStatus = "requires_action"
	SetupProcessing            SetupStatus = "processing"
	SetupRequiresPaymentMethod SetupStatus = "requires_payment_method"
	SetupCanceled              SetupStatus = "canceled"
)

// SetupConfirmation is what the payment widget reports after confirming.
// NextActionURL is set when Status is requires_action and the cardholder must authenticate.
type SetupConfirmation struct {
	Status          SetupStatus `json:"status"`
	PaymentMethodID string      `json:"payment_method_id,omitempty"`
	DeclineCode     string      `json:"decline_code,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	NextActionURL   string      `json:"next_action_url,omitempty"`
}

// ConfirmSetupRequest confirms a setup intent with a tokenized payment method.
type ConfirmSetupRequest struct {
	ClientSecret    string `json:"client_secret" validate:"required"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

// SetupStatusRequest polls a setup intent after an authentication step.
type SetupStatusRequest struct {
	ClientSecret string `json:"client_secret" validate:"required"`
}

// StartTrialRequest is the start-trial call body.
type StartTrialRequest struct {
	CustomerID      string `json:"customer_id" validate:"required"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	PriceID         string `json:"price_id" validate:"required"`
	TrialDays       int    `json:"trial_days" validate:"gte=0,lte=365"`
	TrialEnd        int64  `json:"trial_end,omitempty"`
	AffiliateID     string `json:"affiliate_id" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Phone           string `json:"phone"`
}

// TrialSubscription is the result of start-trial.
type TrialSubscription struct {
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
	TrialEnd       int64  `json:"trial_end"`
	Reused         bool   `json:"reused,omitempty"`
}

// ProvisioningState is the chain of identifiers accumulated by the orchestrator.
type ProvisioningState struct {
	CustomerID        string
	SetupClientSecret string
	PaymentMethodID   string
	SubscriptionID    string
	SubscriptionState string
	ConfirmedAt       time.Time
	TrialEnd          time.Time
}

// Customer is the billing provider's customer record as needed by CRM sync.
type Customer struct {
	ID          string
	Email       string
	Name        string
	Phone       string
	AffiliateID string
	Metadata    map[string]string
}
