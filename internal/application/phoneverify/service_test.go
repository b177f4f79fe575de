package phoneverify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trialsignup/signup/internal/domain"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) Put(ctx context.Context, v *domain.PhoneVerification) error {
	return m.Called(ctx, v).Error(0)
}
func (m *mockStore) Get(ctx context.Context, phone string) (*domain.PhoneVerification, error) {
	args := m.Called(ctx, phone)
	v, _ := args.Get(0).(*domain.PhoneVerification)
	return v, args.Error(1)
}
func (m *mockStore) ClaimAttempt(ctx context.Context, phone string, limit int) (bool, error) {
	args := m.Called(ctx, phone, limit)
	return args.Bool(0), args.Error(1)
}
func (m *mockStore) Delete(ctx context.Context, phone string) error {
	return m.Called(ctx, phone).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, phone, msg string) error {
	return m.Called(ctx, phone, msg).Error(0)
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newOTP(store *mockStore, sms *mockSMSSender) *OTPVerifier {
	v := NewOTPVerifier(store, sms)
	v.now = func() time.Time { return now }
	return v
}

// --- Request ---

func TestRequest_StoresCodeAndSendsSMS(t *testing.T) {
	store := &mockStore{}
	sms := &mockSMSSender{}
	var stored *domain.PhoneVerification
	store.On("Put", mock.Anything, mock.AnythingOfType("*domain.PhoneVerification")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.PhoneVerification) }).
		Return(nil)
	sms.On("SendSMS", mock.Anything, "+15551234567", mock.AnythingOfType("string")).Return(nil)

	svc := NewService(newOTP(store, sms))
	err := svc.Request(context.Background(), domain.PhoneVerificationRequest{Phone: "(555) 123-4567"})

	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Code, 6)
	assert.Equal(t, now.Add(codeTTL).Unix(), stored.ExpiresAt)
	sms.AssertCalled(t, "SendSMS", mock.Anything, "+15551234567", "Your verification code: "+stored.Code)
}

func TestRequest_InvalidPhone(t *testing.T) {
	err := NewService(newOTP(&mockStore{}, &mockSMSSender{})).Request(context.Background(), domain.PhoneVerificationRequest{Phone: "12"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

// --- Validate ---

func TestValidate_CorrectCode(t *testing.T) {
	store := &mockStore{}
	store.On("Get", mock.Anything, "+15551234567").Return(&domain.PhoneVerification{
		Phone: "+15551234567", Code: "123456", ExpiresAt: now.Add(time.Minute).Unix(),
	}, nil)
	store.On("ClaimAttempt", mock.Anything, "+15551234567", maxAttempts).Return(true, nil)
	store.On("Delete", mock.Anything, "+15551234567").Return(nil)

	err := NewService(newOTP(store, nil)).Validate(context.Background(), domain.PhoneVerificationRequest{Phone: "5551234567", Code: "123456"})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestValidate_WrongCodeCountsAttempt(t *testing.T) {
	store := &mockStore{}
	store.On("Get", mock.Anything, "+15551234567").Return(&domain.PhoneVerification{
		Phone: "+15551234567", Code: "123456", Attempts: 2, ExpiresAt: now.Add(time.Minute).Unix(),
	}, nil)
	store.On("ClaimAttempt", mock.Anything, "+15551234567", maxAttempts).Return(true, nil)

	err := NewService(newOTP(store, nil)).Validate(context.Background(), domain.PhoneVerificationRequest{Phone: "5551234567", Code: "000000"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	store.AssertExpectations(t)
}

func TestValidate_Expired(t *testing.T) {
	store := &mockStore{}
	store.On("Get", mock.Anything, "+15551234567").Return(&domain.PhoneVerification{
		Phone: "+15551234567", Code: "123456", ExpiresAt: now.Add(-time.Second).Unix(),
	}, nil)

	err := NewService(newOTP(store, nil)).Validate(context.Background(), domain.PhoneVerificationRequest{Phone: "5551234567", Code: "123456"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestValidate_TooManyAttempts(t *testing.T) {
	store := &mockStore{}
	store.On("Get", mock.Anything, "+15551234567").Return(&domain.PhoneVerification{
		Phone: "+15551234567", Code: "123456", Attempts: maxAttempts, ExpiresAt: now.Add(time.Minute).Unix(),
	}, nil)
	store.On("ClaimAttempt", mock.Anything, "+15551234567", maxAttempts).Return(false, nil)

	err := NewService(newOTP(store, nil)).Validate(context.Background(), domain.PhoneVerificationRequest{Phone: "5551234567", Code: "123456"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

// countingStore enforces the attempt limit the way the conditional update does.
type countingStore struct {
	mu  sync.Mutex
	rec domain.PhoneVerification
}

func (s *countingStore) Put(context.Context, *domain.PhoneVerification) error { return nil }
func (s *countingStore) Delete(context.Context, string) error { return nil }

func (s *countingStore) Get(context.Context, string) (*domain.PhoneVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.rec
	return &rec, nil
}

func (s *countingStore) ClaimAttempt(_ context.Context, _ string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.Attempts >= limit {
		return false, nil
	}
	s.rec.Attempts++
	return true, nil
}

func TestCheck_ConcurrentGuessesCappedAtMaxAttempts(t *testing.T) {
	store := &countingStore{rec: domain.PhoneVerification{
		Phone: "+15551234567", Code: "123456", ExpiresAt: now.Add(time.Minute).Unix(),
	}}
	v := NewOTPVerifier(store, nil)
	v.now = func() time.Time { return now }

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(guess int) {
			defer wg.Done()
			ok, err := v.Check(context.Background(), "+15551234567", fmt.Sprintf("%06d", guess))
			assert.NoError(t, err)
			assert.False(t, ok)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, maxAttempts, store.rec.Attempts)

	ok, err := v.Check(context.Background(), "+15551234567", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_NoPendingCode(t *testing.T) {
	store := &mockStore{}
	store.On("Get", mock.Anything, "+15551234567").Return(nil, domain.ErrNotFound)

	err := NewService(newOTP(store, nil)).Validate(context.Background(), domain.PhoneVerificationRequest{Phone: "5551234567", Code: "123456"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValidate_MissingCode(t *testing.T) {
	err := NewService(newOTP(&mockStore{}, nil)).Validate(context.Background(), domain.PhoneVerificationRequest{Phone: "5551234567"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
