package domain

// ValidationStatus is the lifecycle state of a single field validation.
type ValidationStatus string

const (
	StatusIdle       ValidationStatus = "idle"
	StatusValidating ValidationStatus = "validating"
	StatusValid      ValidationStatus = "valid"
	StatusInvalid    ValidationStatus = "invalid"
	StatusError      ValidationStatus = "error"
)

// Risk is the collaborator-assessed risk of a contact value.
type Risk string

const (
	RiskLow     Risk = "low"
	RiskMedium  Risk = "medium"
	RiskHigh    Risk = "high"
	RiskUnknown Risk = "unknown"
)

// ValidationKind classifies why a result is what it is.
type ValidationKind string

const (
	KindNone       ValidationKind = ""
	KindStructural ValidationKind = "structural" // never reached the remote service
	KindDegraded   ValidationKind = "degraded"   // remote unreachable, structural result used
	KindRejected   ValidationKind = "rejected"   // remote explicitly flagged the value
)

// ReasonServiceDegraded tags results produced without the remote verdict.
const ReasonServiceDegraded = "validation service degraded"

// ValidationResult is the verdict for one field on one validation pass.
type ValidationResult struct {
	IsValid    bool             `json:"is_valid"`
	Status     ValidationStatus `json:"status"`
	Risk       Risk             `json:"risk"`
	Message    string           `json:"message,omitempty"`
	Suggestion string           `json:"suggestion,omitempty"`
	Warning    bool             `json:"warning,omitempty"`
	Kind       ValidationKind   `json:"kind,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	// RequiresVerification is set for phones whose identity match is too weak
	// to accept without a confirmed one-time code.
	RequiresVerification bool   `json:"requires_verification,omitempty"`
	Normalized           string `json:"normalized,omitempty"`
}

// Blocking reports whether the result prevents leaving the personal info step.
func (r ValidationResult) Blocking() bool {
	switch r.Status {
	case StatusValid:
		return !r.IsValid
	default:
		return true
	}
}

// Merge combines a structural result with a remote verdict. Remote fields take
// precedence whenever the remote supplied them; the structural normalized value
// is kept when the remote omits it.
func Merge(structural, remote ValidationResult) ValidationResult {
	out := structural
	out.IsValid = remote.IsValid
	if remote.Status != "" {
		out.Status = remote.Status
	}
	if remote.Risk != "" {
		out.Risk = remote.Risk
	}
	if remote.Message != "" {
		out.Message = remote.Message
	}
	if remote.Suggestion != "" {
		out.Suggestion = remote.Suggestion
	}
	if remote.Kind != KindNone {
		out.Kind = remote.Kind
	}
	if remote.Reason != "" {
		out.Reason = remote.Reason
	}
	if remote.Normalized != "" {
		out.Normalized = remote.Normalized
	}
	out.Warning = remote.Warning
	out.RequiresVerification = remote.RequiresVerification
	return out
}

// Degrade turns a structurally valid result into the inconclusive verdict used
// when the remote service cannot be reached.
func Degrade(structural ValidationResult) ValidationResult {
	out := structural
	out.Kind = KindDegraded
	out.Reason = ReasonServiceDegraded
	out.Risk = RiskUnknown
	return out
}

// EmailCheck is the email verification service's raw answer.
type EmailCheck struct {
	Deliverable bool   `json:"deliverable"`
	Disposable  bool   `json:"disposable"`
	RoleAddress bool   `json:"role_address"`
	Risk        Risk   `json:"risk"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// PhoneCheck is the phone verification service's raw answer.
// IdentityMatchScore is nil when no name was supplied or the service could not score it.
type PhoneCheck struct {
	IsMobile           bool   `json:"is_mobile"`
	IdentityMatchScore *int   `json:"identity_match_score,omitempty"`
	Carrier            string `json:"carrier,omitempty"`
}

// ValidateEmailRequest is the browser-facing request body for validate-email.
type ValidateEmailRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// ValidatePhoneRequest is the browser-facing request body for validate-phone.
type ValidatePhoneRequest struct {
	Phone     string `json:"phone" validate:"required,phone_digits"`
	FirstName string `json:"first_name,omitempty" validate:"max=128"`
	LastName  string `json:"last_name,omitempty" validate:"max=128"`
}
