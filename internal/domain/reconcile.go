package domain

import "time"

// BillingEvent is a verified provider webhook event relevant to CRM sync.
type BillingEvent struct {
	EventID        string
	Type           string
	CustomerID     string
	SubscriptionID string
	Created        time.Time
}

// WebhookEventRecord is the dedupe ledger entry for a processed webhook event.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type WebhookEventRecord struct {
	EventID    string `json:"event_id" dynamodbav:"event_id"`
	Type       string `json:"type" dynamodbav:"type"`
	CustomerID string `json:"customer_id" dynamodbav:"customer_id"`
	JobID      string `json:"job_id" dynamodbav:"job_id"`
	ReceivedAt int64  `json:"received_at" dynamodbav:"received_at"`
	ExpiresAt  int64  `json:"expires_at" dynamodbav:"expires_at"`
}

// SyncJob is one unit of CRM reconciliation work.
type SyncJob struct {
	JobID          string    `json:"job_id"`
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	CustomerID     string    `json:"customer_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// CRMContact is the contact upserted into the CRM.
type CRMContact struct {
	Email          string `json:"email"`
	FirstName      string `json:"firstname,omitempty"`
	LastName       string `json:"lastname,omitempty"`
	Phone          string `json:"phone,omitempty"`
	AffiliateID    string `json:"affiliate_id"`
	CustomerID     string `json:"billing_customer_id"`
	SubscriptionID string `json:"billing_subscription_id,omitempty"`
	LifecycleStage string `json:"lifecyclestage,omitempty"`
}

// PhoneVerification stores a one-time code for the secondary phone verification path.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type PhoneVerification struct {
	Phone     string `json:"phone" dynamodbav:"phone"`
	Code      string `json:"code" dynamodbav:"code"`
	Attempts  int    `json:"attempts" dynamodbav:"attempts"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"`
}

// PhoneVerificationRequest starts or checks a secondary phone verification.
type PhoneVerificationRequest struct {
	Phone string `json:"phone" validate:"required,phone_digits"`
	Code  string `json:"code,omitempty"`
}
