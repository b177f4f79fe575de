package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/pkg/contact"
	"github.com/trialsignup/signup/internal/pkg/validate"
)

// Step is a state of the signup form.
type Step string

const (
	StepPersonalInfo   Step = "personal_info"
	StepPaymentDetails Step = "payment_details"
	StepSubmitting     Step = "submitting"
	StepSuccess        Step = "success"
	StepFailed         Step = "failed"
)

// Form field names accepted by SetField.
const (
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldPassword  = "password"
	FieldZipCode   = "zip_code"
)

// AutosaveKey is the storage key for the mirrored contact fields.
const AutosaveKey = "checkout_contact"

// schemaMessages maps draft struct fields to their inline message.
var schemaMessages = map[string]struct{ field, msg string }{
	"FirstName": {FieldFirstName, "First name is required"},
	"LastName":  {FieldLastName, "Last name is required"},
	"Email":     {FieldEmail, "Please enter a valid email address"},
	"Phone":     {FieldPhone, "Please enter a valid phone number"},
	"Password":  {FieldPassword, "Password must be at least 8 characters and contain 3 of: lowercase, uppercase, number, symbol"},
	"ZipCode":   {FieldZipCode, "Please enter a valid ZIP code"},
}

// FieldValidator is the contract the machine needs from a ValidationClient.
type FieldValidator interface {
	Validate(ctx context.Context, raw string, opts Options) (domain.ValidationResult, error)
}

// MachineDeps holds the machine's collaborators. Storage may be nil.
type MachineDeps struct {
	Email   FieldValidator
	Phone   FieldValidator
	Storage Storage
	Now     func() time.Time
}

// Machine governs which step of the signup form is active and what data has
// been confirmed. It is safe for concurrent use.
type Machine struct {
	email   FieldValidator
	phone   FieldValidator
	storage Storage
	now     func() time.Time

	mu            sync.Mutex
	step          Step
	draft         domain.SignupDraft
	step1         *domain.Step1Data
	results       map[string]domain.ValidationResult
	seq           map[string]uint64
	phoneVerified string
	widgetReady   bool
	lastErr       error
}

// NewMachine starts at the personal info step with any autosaved contact fields restored.
func NewMachine(deps MachineDeps) *Machine {
	m := &Machine{
		email:   deps.Email,
		phone:   deps.Phone,
		storage: deps.Storage,
		now:     deps.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.clear()
	m.restore()
	return m
}

func (m *Machine) clear() {
	m.step = StepPersonalInfo
	m.draft = domain.SignupDraft{}
	m.step1 = nil
	m.results = map[string]domain.ValidationResult{
		FieldEmail: {Status: domain.StatusIdle, Risk: domain.RiskUnknown},
		FieldPhone: {Status: domain.StatusIdle, Risk: domain.RiskUnknown},
	}
	m.seq = map[string]uint64{}
	m.phoneVerified = ""
	m.widgetReady = false
	m.lastErr = nil
}

func (m *Machine) restore() {
	if m.storage == nil {
		return
	}
	raw, ok := m.storage.Get(AutosaveKey)
	if !ok || raw == "" {
		return
	}
	var c domain.ContactFields
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		slog.Warn("discarding unreadable autosave", "err", err)
		return
	}
	m.draft.FirstName = c.FirstName
	m.draft.LastName = c.LastName
	m.draft.Email = c.Email
	m.draft.Phone = c.Phone
	m.draft.ZipCode = c.ZipCode
}

// autosave mirrors the contact fields. Caller holds mu.
func (m *Machine) autosave() {
	if m.storage == nil {
		return
	}
	raw, err := json.Marshal(m.draft.Contact())
	if err != nil {
		return
	}
	if err := m.storage.Set(AutosaveKey, string(raw)); err != nil {
		slog.Warn("autosave failed", "err", err)
	}
}

func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Draft returns a copy of the form state.
func (m *Machine) Draft() domain.SignupDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft
}

// Step1 returns the frozen personal info, if the step has been passed.
func (m *Machine) Step1() (domain.Step1Data, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step1 == nil {
		return domain.Step1Data{}, false
	}
	return *m.step1, true
}

// Result returns the latest applied verdict for the email or phone field.
func (m *Machine) Result(field string) domain.ValidationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[field]
}

func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// SetField updates one draft field. Editing email, phone or the name resets
// the affected verdicts to idle.
func (m *Machine) SetField(field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepPersonalInfo {
		return ErrWrongStep
	}
	switch field {
	case FieldFirstName:
		m.draft.FirstName = value
		m.resetResult(FieldPhone)
	case FieldLastName:
		m.draft.LastName = value
		m.resetResult(FieldPhone)
	case FieldEmail:
		m.draft.Email = value
		m.resetResult(FieldEmail)
	case FieldPhone:
		m.draft.Phone = value
		m.resetResult(FieldPhone)
	case FieldPassword:
		m.draft.Password = value
		return nil
	case FieldZipCode:
		m.draft.ZipCode = value
	default:
		return fmt.Errorf("unknown field %q: %w", field, domain.ErrBadRequest)
	}
	m.autosave()
	return nil
}

// resetResult invalidates the verdict and any in-flight validation for field. Caller holds mu.
func (m *Machine) resetResult(field string) {
	m.seq[field]++
	m.results[field] = domain.ValidationResult{Status: domain.StatusIdle, Risk: domain.RiskUnknown}
}

// ValidateField validates the current value of the email or phone field and
// applies the verdict unless a newer validation of the field has started.
func (m *Machine) ValidateField(ctx context.Context, field string, immediate bool) (domain.ValidationResult, error) {
	m.mu.Lock()
	var v FieldValidator
	var raw string
	opts := Options{Immediate: immediate}
	switch field {
	case FieldEmail:
		v, raw = m.email, m.draft.Email
	case FieldPhone:
		v, raw = m.phone, m.draft.Phone
		opts.Name = strings.TrimSpace(m.draft.FirstName + " " + m.draft.LastName)
	default:
		m.mu.Unlock()
		return domain.ValidationResult{}, fmt.Errorf("field %q is not remotely validated: %w", field, domain.ErrBadRequest)
	}
	m.seq[field]++
	seq := m.seq[field]
	m.results[field] = domain.ValidationResult{Status: domain.StatusValidating, Risk: domain.RiskUnknown}
	m.mu.Unlock()

	res, err := v.Validate(ctx, raw, opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seq[field] != seq {
		return domain.ValidationResult{}, ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			return domain.ValidationResult{}, err
		}
		m.results[field] = domain.ValidationResult{Status: domain.StatusIdle, Risk: domain.RiskUnknown}
		return domain.ValidationResult{}, err
	}
	m.results[field] = res
	return res, nil
}

// Next leaves the personal info step once the draft passes the schema check
// and both contact verdicts are non-blocking. Fields not yet validated are
// validated concurrently with Immediate set.
func (m *Machine) Next(ctx context.Context) error {
	m.mu.Lock()
	if m.step != StepPersonalInfo {
		m.mu.Unlock()
		return ErrWrongStep
	}
	if m.validatingLocked() {
		m.mu.Unlock()
		return ErrValidationInFlight
	}
	if rejected := schemaErrors(m.draft); len(rejected) > 0 {
		m.mu.Unlock()
		return &ValidationRejected{Fields: rejected}
	}
	var pending []string
	for _, f := range []string{FieldEmail, FieldPhone} {
		if m.results[f].Status == domain.StatusIdle {
			pending = append(pending, f)
		}
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range pending {
		f := f
		g.Go(func() error {
			_, err := m.ValidateField(gctx, f, true)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrSuperseded) {
			return ErrValidationInFlight
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepPersonalInfo {
		return ErrWrongStep
	}
	if m.validatingLocked() {
		return ErrValidationInFlight
	}
	rejected := map[string]string{}
	for _, f := range []string{FieldEmail, FieldPhone} {
		res := m.results[f]
		if !res.Blocking() {
			continue
		}
		if f == FieldPhone && res.RequiresVerification && m.phoneVerified != "" && m.phoneVerified == contact.NormalizePhone(m.draft.Phone) {
			continue
		}
		msg := res.Message
		if msg == "" {
			msg = "Please check this field"
		}
		rejected[f] = msg
	}
	if len(rejected) > 0 {
		return &ValidationRejected{Fields: rejected}
	}

	email := m.results[FieldEmail].Normalized
	if email == "" {
		email = contact.NormalizeEmail(m.draft.Email)
	}
	phone := m.results[FieldPhone].Normalized
	if phone == "" {
		phone = contact.NormalizePhone(m.draft.Phone)
	}
	m.step1 = &domain.Step1Data{
		FirstName: strings.TrimSpace(m.draft.FirstName),
		LastName:  strings.TrimSpace(m.draft.LastName),
		Email:     email,
		Phone:     phone,
		Password:  m.draft.Password,
		ZipCode:   strings.TrimSpace(m.draft.ZipCode),
		FrozenAt:  m.now(),
	}
	m.step = StepPaymentDetails
	return nil
}

func (m *Machine) validatingLocked() bool {
	for _, res := range m.results {
		if res.Status == domain.StatusValidating {
			return true
		}
	}
	return false
}

func schemaErrors(d domain.SignupDraft) map[string]string {
	failed := validate.Fields(d)
	if len(failed) == 0 {
		return nil
	}
	out := make(map[string]string, len(failed))
	for name := range failed {
		if m, ok := schemaMessages[name]; ok {
			out[m.field] = m.msg
		} else {
			out[name] = "Invalid value"
		}
	}
	return out
}

// Back returns to the personal info step. Entered and frozen data are kept.
func (m *Machine) Back() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.step {
	case StepPersonalInfo:
		return nil
	case StepPaymentDetails, StepFailed:
		m.step = StepPersonalInfo
		return nil
	}
	return ErrWrongStep
}

// SetWidgetReady records whether the payment widget can confirm a setup.
func (m *Machine) SetWidgetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.widgetReady = ready
}

func (m *Machine) AcceptTerms(accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft.TermsAccepted = accepted
}

// MarkPhoneVerified accepts the current phone despite a weak identity match,
// once its one-time code has been confirmed.
func (m *Machine) MarkPhoneVerified() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phoneVerified = contact.NormalizePhone(m.draft.Phone)
}

// IsFormReady reports whether submit may start.
func (m *Machine) IsFormReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyLocked()
}

func (m *Machine) readyLocked() bool {
	onPayment := m.step == StepPaymentDetails || m.step == StepFailed
	return onPayment && m.step1 != nil && m.widgetReady && m.draft.TermsAccepted
}

// BeginSubmit enters the submitting step and returns the data to provision.
func (m *Machine) BeginSubmit() (domain.Step1Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.readyLocked() {
		return domain.Step1Data{}, ErrNotReady
	}
	m.step = StepSubmitting
	m.lastErr = nil
	return *m.step1, nil
}

func (m *Machine) Complete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepSubmitting {
		return ErrWrongStep
	}
	m.step = StepSuccess
	return nil
}

// Fail ends a submit attempt. The draft and frozen data stay so the user can resubmit.
func (m *Machine) Fail(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != StepSubmitting {
		return ErrWrongStep
	}
	m.step = StepFailed
	m.lastErr = err
	return nil
}

// Reset discards all form state, including the autosave.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
	if m.storage != nil {
		if err := m.storage.Delete(AutosaveKey); err != nil {
			slog.Warn("failed to clear autosave", "err", err)
		}
	}
}
