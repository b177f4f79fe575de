package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trialsignup/signup/internal/domain"
)

type mockVerificationSvc struct{ mock.Mock }

func (m *mockVerificationSvc) ValidateEmail(ctx context.Context, req domain.ValidateEmailRequest) (*domain.ValidationResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*domain.ValidationResult)
	return r, args.Error(1)
}
func (m *mockVerificationSvc) ValidatePhone(ctx context.Context, req domain.ValidatePhoneRequest) (*domain.ValidationResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*domain.ValidationResult)
	return r, args.Error(1)
}

type mockPhoneVerifySvc struct{ mock.Mock }

func (m *mockPhoneVerifySvc) Request(ctx context.Context, req domain.PhoneVerificationRequest) error {
	return m.Called(ctx, req).Error(0)
}
func (m *mockPhoneVerifySvc) Validate(ctx context.Context, req domain.PhoneVerificationRequest) error {
	return m.Called(ctx, req).Error(0)
}

// withAction injects a chi URL param "action" into the request context.
func withAction(r *http.Request, action string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("action", action)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestValidateEmail_ReturnsVerdict(t *testing.T) {
	svc := &mockVerificationSvc{}
	svc.On("ValidateEmail", mock.Anything, domain.ValidateEmailRequest{Email: "a@tempmail.io"}).Return(&domain.ValidationResult{
		IsValid: false, Status: domain.StatusInvalid, Risk: domain.RiskHigh, Kind: domain.KindRejected,
		Message: "Disposable email addresses are not allowed",
	}, nil)

	rr := httptest.NewRecorder()
	NewVerificationHandler(svc).ValidateEmail(rr, postJSON(t, "/v1/validate/email", domain.ValidateEmailRequest{Email: "a@tempmail.io"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	var res domain.ValidationResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, domain.KindRejected, res.Kind)
	assert.Equal(t, "Disposable email addresses are not allowed", res.Message)
}

func TestValidatePhone_UpstreamDown(t *testing.T) {
	svc := &mockVerificationSvc{}
	svc.On("ValidatePhone", mock.Anything, mock.Anything).Return(nil, domain.ErrUnavailable)

	rr := httptest.NewRecorder()
	NewVerificationHandler(svc).ValidatePhone(rr, postJSON(t, "/v1/validate/phone", domain.ValidatePhoneRequest{Phone: "5551234567"}))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestValidateEmail_WrappedProviderOutage(t *testing.T) {
	outage := domain.NewProviderError(domain.ProviderOutage, "emailcheck", "status 500", nil)
	svc := &mockVerificationSvc{}
	svc.On("ValidateEmail", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("email verification: %w: %w", domain.ErrUnavailable, outage))

	rr := httptest.NewRecorder()
	NewVerificationHandler(svc).ValidateEmail(rr, postJSON(t, "/v1/validate/email", domain.ValidateEmailRequest{Email: "a@b.com"}))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPhoneVerify_Request(t *testing.T) {
	svc := &mockPhoneVerifySvc{}
	svc.On("Request", mock.Anything, domain.PhoneVerificationRequest{Phone: "5551234567"}).Return(nil)

	rr := httptest.NewRecorder()
	r := withAction(postJSON(t, "/v1/phone-verification/request", domain.PhoneVerificationRequest{Phone: "5551234567"}), "request")
	NewPhoneVerifyHandler(svc).Action(rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPhoneVerify_WrongCode(t *testing.T) {
	svc := &mockPhoneVerifySvc{}
	svc.On("Validate", mock.Anything, mock.Anything).Return(domain.ErrUnauthorized)

	rr := httptest.NewRecorder()
	r := withAction(postJSON(t, "/v1/phone-verification/validate-code", domain.PhoneVerificationRequest{Phone: "5551234567", Code: "1"}), "validate-code")
	NewPhoneVerifyHandler(svc).Action(rr, r)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPhoneVerify_UnknownAction(t *testing.T) {
	rr := httptest.NewRecorder()
	r := withAction(httptest.NewRequest(http.MethodPost, "/v1/phone-verification/x", bytes.NewBufferString(`{}`)), "x")
	NewPhoneVerifyHandler(&mockPhoneVerifySvc{}).Action(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
