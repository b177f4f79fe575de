package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSuperseded is returned to a validation whose result arrived after a
	// newer request for the same field. Callers discard it.
	ErrSuperseded = errors.New("validation superseded")
	// ErrValidationInFlight blocks a step transition while a field is still validating.
	ErrValidationInFlight = errors.New("validation in progress")
	// ErrNotReady is returned when submit is attempted before the payment step is complete.
	ErrNotReady = errors.New("form not ready")
	// ErrWrongStep is returned for a transition the current step does not allow.
	ErrWrongStep = errors.New("transition not allowed from current step")
)

// ValidationRejected lists the inline message for every field blocking the
// personal info step. Structural and service-confirmed rejections both land here.
type ValidationRejected struct {
	Fields map[string]string
}

func (e *ValidationRejected) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range sortedKeys(e.Fields) {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "validation rejected: " + strings.Join(parts, "; ")
}

// FailureKind classifies why a provisioning attempt failed.
type FailureKind string

const (
	PaymentDeclined    FailureKind = "payment_declined"
	PaymentSetupFailed FailureKind = "payment_setup_failed"
	ProvisioningFailed FailureKind = "provisioning_failed"
)

// Provisioning stages in execution order.
const (
	StageEnsureCustomer = "ensure_customer"
	StageSetupIntent    = "create_setup_intent"
	StageConfirmSetup   = "confirm_setup"
	StageStartTrial     = "start_trial"
)

// ProvisioningError aborts a submit attempt. Entered data is kept so the user can resubmit.
type ProvisioningError struct {
	Kind        FailureKind
	Stage       string
	DeclineCode string
	Err         error
}

func (e *ProvisioningError) Error() string {
	msg := fmt.Sprintf("%s at %s", e.Kind, e.Stage)
	if e.DeclineCode != "" {
		msg += " (" + e.DeclineCode + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// User-facing messages for provisioning failures.
const (
	MsgInsufficientFunds = "Your card was declined due to insufficient funds. Please use a different card."
	MsgExpiredCard       = "Your card has expired. Please use a different card."
	MsgIncorrectCVC      = "Your card's security code is incorrect. Please check it and try again."
	MsgIncorrectNumber   = "Your card number is incorrect. Please check it and try again."
	MsgCardDeclined      = "Your card was declined. Please try a different payment method."
	MsgSetupFailed       = "We couldn't confirm your payment method. Please try again."
	MsgProvisioning      = "Something went wrong setting up your trial. Please try again or contact support."
)

// UserMessage renders the single message shown for a failed submit.
func UserMessage(err error) string {
	var pe *ProvisioningError
	if !errors.As(err, &pe) {
		return MsgProvisioning
	}
	switch pe.Kind {
	case PaymentDeclined:
		return DeclineMessage(pe.DeclineCode)
	case PaymentSetupFailed:
		return MsgSetupFailed
	default:
		return MsgProvisioning
	}
}

// DeclineMessage maps a provider decline code to an actionable message.
func DeclineMessage(code string) string {
	switch code {
	case "insufficient_funds":
		return MsgInsufficientFunds
	case "expired_card":
		return MsgExpiredCard
	case "incorrect_cvc", "invalid_cvc":
		return MsgIncorrectCVC
	case "incorrect_number", "invalid_number":
		return MsgIncorrectNumber
	default:
		return MsgCardDeclined
	}
}
