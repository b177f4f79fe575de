package twilio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

type mockVerify struct{ mock.Mock }

func (m *mockVerify) CreateVerification(sid string, p *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error) {
	args := m.Called(sid, *p.To, *p.Channel)
	out, _ := args.Get(0).(*verify.VerifyV2Verification)
	return out, args.Error(1)
}

func (m *mockVerify) CreateVerificationCheck(sid string, p *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error) {
	args := m.Called(sid, *p.To, *p.Code)
	out, _ := args.Get(0).(*verify.VerifyV2VerificationCheck)
	return out, args.Error(1)
}

func strp(s string) *string { return &s }

func TestStart_SendsSMS(t *testing.T) {
	api := new(mockVerify)
	api.On("CreateVerification", "VA1", "+15551234567", "sms").
		Return(&verify.VerifyV2Verification{Status: strp("pending")}, nil)

	v := &Verifier{api: api, serviceID: "VA1"}
	require.NoError(t, v.Start(context.Background(), "+15551234567"))
	api.AssertExpectations(t)
}

func TestCheck_Approved(t *testing.T) {
	api := new(mockVerify)
	api.On("CreateVerificationCheck", "VA1", "+15551234567", "123456").
		Return(&verify.VerifyV2VerificationCheck{Status: strp("approved")}, nil)

	v := &Verifier{api: api, serviceID: "VA1"}
	ok, err := v.Check(context.Background(), "+15551234567", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck_Pending(t *testing.T) {
	api := new(mockVerify)
	api.On("CreateVerificationCheck", "VA1", "+15551234567", "000000").
		Return(&verify.VerifyV2VerificationCheck{Status: strp("pending")}, nil)

	v := &Verifier{api: api, serviceID: "VA1"}
	ok, err := v.Check(context.Background(), "+15551234567", "000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStart_Error(t *testing.T) {
	api := new(mockVerify)
	api.On("CreateVerification", "VA1", "+15551234567", "sms").Return(nil, errors.New("boom"))

	v := &Verifier{api: api, serviceID: "VA1"}
	assert.ErrorContains(t, v.Start(context.Background(), "+15551234567"), "boom")
}
