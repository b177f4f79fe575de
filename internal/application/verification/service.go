package verification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/metrics"
	"github.com/trialsignup/signup/internal/pkg/contact"
	"github.com/trialsignup/signup/internal/pkg/validate"
)

// Identity match thresholds for phone verdicts.
const (
	WeakMatchBelow       = 40
	StrongMatchAtOrAbove = 80
)

// User-facing messages.
const (
	MsgDisposable    = "Disposable email addresses are not allowed"
	MsgUndeliverable = "This email address appears to be undeliverable"
	MsgRiskyEmail    = "This email address may have delivery issues"
	MsgNotMobile     = "Please use a mobile phone number"
	MsgWeakMatch     = "We couldn't confirm this phone number belongs to you. Please verify it with a code."
	MsgPartialMatch  = "We could only partially match this phone number to your name"
)

const (
	FieldEmail = "email"
	FieldPhone = "phone"
)

type Service interface {
	ValidateEmail(ctx context.Context, req domain.ValidateEmailRequest) (*domain.ValidationResult, error)
	ValidatePhone(ctx context.Context, req domain.ValidatePhoneRequest) (*domain.ValidationResult, error)
}

type emailChecker interface {
	Check(ctx context.Context, address string) (*domain.EmailCheck, error)
}

type phoneChecker interface {
	Check(ctx context.Context, e164, name string) (*domain.PhoneCheck, error)
}

type verdictCache interface {
	Get(ctx context.Context, field, value string) (*domain.ValidationResult, bool, error)
	Set(ctx context.Context, field, value string, res domain.ValidationResult) error
}

// ServiceDeps holds all dependencies for the verification service. Cache may be nil.
type ServiceDeps struct {
	Email   emailChecker
	Phone   phoneChecker
	Cache   verdictCache
	Metrics *metrics.Metrics
}

type service struct {
	email   emailChecker
	phone   phoneChecker
	cache   verdictCache
	metrics *metrics.Metrics
	flights singleflight.Group
}

func NewService(deps ServiceDeps) Service {
	return &service{email: deps.Email, phone: deps.Phone, cache: deps.Cache, metrics: deps.Metrics}
}

// ValidateEmail returns the structural verdict for malformed input, otherwise the
// classified remote verdict. A remote failure is returned as an error wrapping
// domain.ErrUnavailable so the caller can degrade.
func (s *service) ValidateEmail(ctx context.Context, req domain.ValidateEmailRequest) (*domain.ValidationResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	normalized := contact.NormalizeEmail(req.Email)
	structural := contact.CheckEmail(normalized)
	if !structural.IsValid {
		s.record(FieldEmail, structural)
		return &structural, nil
	}
	return s.resolve(ctx, FieldEmail, normalized, func() (domain.ValidationResult, error) {
		check, err := s.email.Check(ctx, normalized)
		if err != nil {
			return domain.ValidationResult{}, err
		}
		return domain.Merge(structural, ClassifyEmail(*check)), nil
	})
}

// ValidatePhone is ValidateEmail for phones. The identity match is only scored
// when a name is supplied.
func (s *service) ValidatePhone(ctx context.Context, req domain.ValidatePhoneRequest) (*domain.ValidationResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	normalized := contact.NormalizePhone(req.Phone)
	structural := contact.CheckPhone(normalized)
	if !structural.IsValid {
		s.record(FieldPhone, structural)
		return &structural, nil
	}
	name := strings.TrimSpace(strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName))
	key := normalized + "|" + strings.ToLower(name)
	return s.resolve(ctx, FieldPhone, key, func() (domain.ValidationResult, error) {
		check, err := s.phone.Check(ctx, contact.E164(normalized), name)
		if err != nil {
			return domain.ValidationResult{}, err
		}
		return domain.Merge(structural, ClassifyPhone(*check)), nil
	})
}

// resolve serves key from the cache, or coalesces concurrent remote lookups for it.
func (s *service) resolve(ctx context.Context, field, key string, remote func() (domain.ValidationResult, error)) (*domain.ValidationResult, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, field, key)
		if err != nil {
			slog.Warn("verdict cache read failed", "field", field, "err", err)
		} else if ok {
			return cached, nil
		}
	}

	v, err, _ := s.flights.Do(field+":"+key, func() (interface{}, error) {
		res, err := remote()
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, field, key, res); err != nil {
				slog.Warn("verdict cache write failed", "field", field, "err", err)
			}
		}
		return res, nil
	})
	if err != nil {
		s.metrics.IncVerdict(field, string(domain.StatusError), string(domain.KindDegraded))
		slog.Warn("verification service unavailable", "field", field, "err", err)
		return nil, fmt.Errorf("%s verification: %w: %w", field, domain.ErrUnavailable, err)
	}
	res := v.(domain.ValidationResult)
	s.record(field, res)
	return &res, nil
}

func (s *service) record(field string, res domain.ValidationResult) {
	s.metrics.IncVerdict(field, string(res.Status), string(res.Kind))
}

// ClassifyEmail maps the email service's answer to a verdict. Disposable and
// undeliverable addresses are rejected; role addresses and high risk pass with a warning.
func ClassifyEmail(c domain.EmailCheck) domain.ValidationResult {
	risk := c.Risk
	if risk == "" {
		risk = domain.RiskUnknown
	}
	res := domain.ValidationResult{IsValid: true, Status: domain.StatusValid, Risk: risk, Suggestion: c.Suggestion}
	switch {
	case c.Disposable:
		return rejected(res, MsgDisposable)
	case !c.Deliverable:
		return rejected(res, MsgUndeliverable)
	case c.RoleAddress || risk == domain.RiskHigh:
		res.Warning = true
		res.Message = MsgRiskyEmail
	}
	if c.Suggestion != "" && res.Message == "" {
		res.Message = fmt.Sprintf("Did you mean %s?", c.Suggestion)
	}
	return res
}

// ClassifyPhone maps the phone service's answer to a verdict. A nil score skips
// the identity match check.
func ClassifyPhone(c domain.PhoneCheck) domain.ValidationResult {
	res := domain.ValidationResult{IsValid: true, Status: domain.StatusValid, Risk: domain.RiskLow}
	if !c.IsMobile {
		return rejected(res, MsgNotMobile)
	}
	if c.IdentityMatchScore == nil {
		res.Risk = domain.RiskUnknown
		return res
	}
	switch score := *c.IdentityMatchScore; {
	case score < WeakMatchBelow:
		res = rejected(res, MsgWeakMatch)
		res.Risk = domain.RiskHigh
		res.RequiresVerification = true
	case score < StrongMatchAtOrAbove:
		res.Warning = true
		res.Risk = domain.RiskMedium
		res.Message = MsgPartialMatch
	}
	return res
}

func rejected(res domain.ValidationResult, msg string) domain.ValidationResult {
	res.IsValid = false
	res.Status = domain.StatusInvalid
	res.Kind = domain.KindRejected
	res.Message = msg
	if res.Risk == "" || res.Risk == domain.RiskLow || res.Risk == domain.RiskUnknown {
		res.Risk = domain.RiskHigh
	}
	return res
}
