package domain

import "time"

// SignupDraft is the mutable form state of step 1.
type SignupDraft struct {
	FirstName     string `json:"first_name" validate:"required,max=128"`
	LastName      string `json:"last_name" validate:"required,max=128"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Phone         string `json:"phone" validate:"required,phone_digits"`
	Password      string `json:"-" validate:"required,password_strength"`
	ZipCode       string `json:"zip_code,omitempty" validate:"omitempty,max=10"`
	TermsAccepted bool   `json:"terms_accepted"`
}

// ContactFields is the subset of the draft that may be mirrored to durable storage.
type ContactFields struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	ZipCode   string `json:"zip_code,omitempty"`
}

// Contact returns the persistable subset of the draft. The password is never included.
func (d SignupDraft) Contact() ContactFields {
	return ContactFields{
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		Phone:     d.Phone,
		ZipCode:   d.ZipCode,
	}
}

// Step1Data is the frozen, validated result of the personal info step.
// Email and Phone hold normalized values.
type Step1Data struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
	ZipCode   string
	FrozenAt  time.Time
}

// FullName joins first and last name.
func (s Step1Data) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// AttributionNone is the sentinel returned when no referral identifier is known.
const AttributionNone = "none"

// AttributionRecord carries the referral/affiliate identifier for a signup.
type AttributionRecord struct {
	AffiliateID string `json:"affiliate_id"`
}

// PricingOffer is the static plan description. Loaded once at startup.
type PricingOffer struct {
	PriceID     string `json:"price_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
	TrialDays   int    `json:"trial_days"`
}

// TrialLength returns the trial period as a duration.
func (o PricingOffer) TrialLength() time.Duration {
	return time.Duration(o.TrialDays) * 24 * time.Hour
}
