package twilio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

// verifyAPI is the subset of the Verify v2 service used here.
type verifyAPI interface {
	CreateVerification(serviceSid string, params *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error)
}

// Verifier sends and checks phone codes through Twilio Verify.
type Verifier struct {
	api       verifyAPI
	serviceID string
}

// NewVerifier creates a Verify client for serviceID.
func NewVerifier(accountSid, authToken, serviceID string) *Verifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return &Verifier{api: client.VerifyV2, serviceID: serviceID}
}

// Start sends a code by SMS to the E.164 number.
func (v *Verifier) Start(_ context.Context, e164 string) error {
	params := &verify.CreateVerificationParams{}
	params.SetTo(e164)
	params.SetChannel("sms")

	resp, err := v.api.CreateVerification(v.serviceID, params)
	if err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	slog.Info("verification code sent", "status", deref(resp.Status))
	return nil
}

// Check reports whether code is the approved code for e164.
func (v *Verifier) Check(_ context.Context, e164, code string) (bool, error) {
	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(e164)
	params.SetCode(code)

	resp, err := v.api.CreateVerificationCheck(v.serviceID, params)
	if err != nil {
		return false, fmt.Errorf("check verification code: %w", err)
	}
	return deref(resp.Status) == "approved", nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
