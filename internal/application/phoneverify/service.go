package phoneverify

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/infrastructure/sns"
	"github.com/trialsignup/signup/internal/pkg/contact"
	"github.com/trialsignup/signup/internal/pkg/validate"
)

const (
	codeTTL     = 10 * time.Minute
	maxAttempts = 5
)

type Service interface {
	Request(ctx context.Context, req domain.PhoneVerificationRequest) error
	Validate(ctx context.Context, req domain.PhoneVerificationRequest) error
}

// Verifier sends a code to a phone and checks it. Both the OTP store below and
// the Twilio Verify client implement it.
type Verifier interface {
	Start(ctx context.Context, e164 string) error
	Check(ctx context.Context, e164, code string) (bool, error)
}

type service struct {
	verifier Verifier
}

func NewService(verifier Verifier) Service {
	return &service{verifier: verifier}
}

func (s *service) Request(ctx context.Context, req domain.PhoneVerificationRequest) error {
	e164, err := phoneOf(req)
	if err != nil {
		return err
	}
	return s.verifier.Start(ctx, e164)
}

// Validate returns nil when the code is correct, domain.ErrUnauthorized otherwise.
func (s *service) Validate(ctx context.Context, req domain.PhoneVerificationRequest) error {
	e164, err := phoneOf(req)
	if err != nil {
		return err
	}
	if req.Code == "" {
		return fmt.Errorf("code required: %w", domain.ErrBadRequest)
	}
	ok, err := s.verifier.Check(ctx, e164, req.Code)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invalid code: %w", domain.ErrUnauthorized)
	}
	return nil
}

func phoneOf(req domain.PhoneVerificationRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	normalized := contact.NormalizePhone(req.Phone)
	if res := contact.CheckPhone(normalized); !res.IsValid {
		return "", fmt.Errorf("%s: %w", res.Message, domain.ErrBadRequest)
	}
	return contact.E164(normalized), nil
}

// codeStore persists pending codes.
type codeStore interface {
	Put(ctx context.Context, v *domain.PhoneVerification) error
	Get(ctx context.Context, phone string) (*domain.PhoneVerification, error)
	ClaimAttempt(ctx context.Context, phone string, limit int) (bool, error)
	Delete(ctx context.Context, phone string) error
}

// OTPVerifier stores six-digit codes and delivers them by SMS.
type OTPVerifier struct {
	store codeStore
	sms   sns.SMSSender
	now   func() time.Time
}

func NewOTPVerifier(store codeStore, sms sns.SMSSender) *OTPVerifier {
	return &OTPVerifier{store: store, sms: sms, now: time.Now}
}

func (v *OTPVerifier) Start(ctx context.Context, e164 string) error {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return err
	}
	code := fmt.Sprintf("%06d", n.Int64())
	rec := &domain.PhoneVerification{
		Phone:     e164,
		Code:      code,
		ExpiresAt: v.now().Add(codeTTL).Unix(),
	}
	if err := v.store.Put(ctx, rec); err != nil {
		return err
	}
	return v.sms.SendSMS(ctx, e164, "Your verification code: "+code)
}

func (v *OTPVerifier) Check(ctx context.Context, e164, code string) (bool, error) {
	rec, err := v.store.Get(ctx, e164)
	if err != nil {
		return false, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	if rec.ExpiresAt < v.now().Unix() {
		return false, nil
	}
	claimed, err := v.store.ClaimAttempt(ctx, e164, maxAttempts)
	if err != nil {
		return false, fmt.Errorf("record verification attempt: %w", err)
	}
	if !claimed || subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return false, nil
	}
	if err := v.store.Delete(ctx, e164); err != nil {
		slog.Warn("failed to delete phone verification record", "err", err)
	}
	return true, nil
}
