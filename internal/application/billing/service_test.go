package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trialsignup/signup/internal/domain"
)

// --- mocks ---

type mockProvider struct{ mock.Mock }

func (m *mockProvider) FindCustomerByEmail(email string) (*domain.Customer, error) {
	args := m.Called(email)
	c, _ := args.Get(0).(*domain.Customer)
	return c, args.Error(1)
}
func (m *mockProvider) CreateCustomer(req domain.EnsureCustomerRequest, key string) (*domain.Customer, error) {
	args := m.Called(req, key)
	c, _ := args.Get(0).(*domain.Customer)
	return c, args.Error(1)
}
func (m *mockProvider) UpdateCustomer(customerID string, req domain.EnsureCustomerRequest) (*domain.Customer, error) {
	args := m.Called(customerID, req)
	c, _ := args.Get(0).(*domain.Customer)
	return c, args.Error(1)
}
func (m *mockProvider) CreateSetupIntent(customerID, key string) (string, error) {
	args := m.Called(customerID, key)
	return args.String(0), args.Error(1)
}
func (m *mockProvider) ConfirmSetup(secret, pm string) (*domain.SetupConfirmation, error) {
	args := m.Called(secret, pm)
	c, _ := args.Get(0).(*domain.SetupConfirmation)
	return c, args.Error(1)
}
func (m *mockProvider) SetupStatus(secret string) (*domain.SetupConfirmation, error) {
	args := m.Called(secret)
	c, _ := args.Get(0).(*domain.SetupConfirmation)
	return c, args.Error(1)
}
func (m *mockProvider) ActiveTrial(customerID, priceID string) (*domain.TrialSubscription, error) {
	args := m.Called(customerID, priceID)
	s, _ := args.Get(0).(*domain.TrialSubscription)
	return s, args.Error(1)
}
func (m *mockProvider) StartTrial(req domain.StartTrialRequest, trialEnd int64, key string) (*domain.TrialSubscription, error) {
	args := m.Called(req, trialEnd, key)
	s, _ := args.Get(0).(*domain.TrialSubscription)
	return s, args.Error(1)
}

// --- builder ---

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var testOffer = domain.PricingOffer{PriceID: "price_1", AmountCents: 2900, Currency: "usd", Interval: "month", TrialDays: 30}

func newService(p *mockProvider) Service {
	return NewService(ServiceDeps{
		Provider: p,
		Offer:    testOffer,
		Now:      func() time.Time { return fixedNow },
	})
}

func customerReq() domain.EnsureCustomerRequest {
	return domain.EnsureCustomerRequest{
		Email:       "  Ana@Example.com ",
		FirstName:   "Ana",
		LastName:    "Diaz",
		Phone:       "(555) 123-4567",
		AffiliateID: "aff42",
	}
}

func trialReq() domain.StartTrialRequest {
	return domain.StartTrialRequest{
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_1",
		PriceID:         "price_1",
		AffiliateID:     "aff42",
		Email:           "ana@example.com",
		Phone:           "5551234567",
	}
}

// --- EnsureCustomer ---

func TestEnsureCustomer_CreatesWhenMissing(t *testing.T) {
	p := &mockProvider{}
	p.On("FindCustomerByEmail", "ana@example.com").Return(nil, domain.ErrNotFound)
	p.On("CreateCustomer", mock.MatchedBy(func(r domain.EnsureCustomerRequest) bool {
		return r.Email == "ana@example.com" && r.Phone == "+15551234567" && r.AffiliateID == "aff42"
	}), mock.AnythingOfType("string")).Return(&domain.Customer{ID: "cus_new"}, nil)

	resp, err := newService(p).EnsureCustomer(context.Background(), customerReq())
	require.NoError(t, err)
	assert.Equal(t, "cus_new", resp.CustomerID)
	assert.True(t, resp.Created)
	p.AssertExpectations(t)
}

func TestEnsureCustomer_ReusesExisting(t *testing.T) {
	p := &mockProvider{}
	p.On("FindCustomerByEmail", "ana@example.com").Return(&domain.Customer{ID: "cus_old"}, nil)
	p.On("UpdateCustomer", "cus_old", mock.Anything).Return(&domain.Customer{ID: "cus_old"}, nil)

	resp, err := newService(p).EnsureCustomer(context.Background(), customerReq())
	require.NoError(t, err)
	assert.Equal(t, "cus_old", resp.CustomerID)
	assert.False(t, resp.Created)
	p.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
}

func TestEnsureCustomer_InvalidRequest(t *testing.T) {
	p := &mockProvider{}
	req := customerReq()
	req.Email = "not-an-email"

	_, err := newService(p).EnsureCustomer(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	p.AssertNotCalled(t, "FindCustomerByEmail", mock.Anything)
}

func TestEnsureCustomer_ProviderOutage(t *testing.T) {
	p := &mockProvider{}
	outage := domain.NewProviderError(domain.ProviderOutage, "billing", "list customers", nil)
	p.On("FindCustomerByEmail", "ana@example.com").Return(nil, outage)

	_, err := newService(p).EnsureCustomer(context.Background(), customerReq())
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ProviderOutage, pe.Category)
}

// --- CreateSetupIntent ---

func TestCreateSetupIntent(t *testing.T) {
	p := &mockProvider{}
	p.On("CreateSetupIntent", "cus_1", mock.AnythingOfType("string")).Return("seti_1_secret_x", nil)

	resp, err := newService(p).CreateSetupIntent(context.Background(), domain.SetupIntentRequest{CustomerID: "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, "seti_1_secret_x", resp.ClientSecret)
}

func TestCreateSetupIntent_MissingCustomer(t *testing.T) {
	_, err := newService(&mockProvider{}).CreateSetupIntent(context.Background(), domain.SetupIntentRequest{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

// --- ConfirmSetup ---

func TestConfirmSetup_DeclinePassedThrough(t *testing.T) {
	p := &mockProvider{}
	p.On("ConfirmSetup", "seti_1_secret_x", "pm_1").Return(&domain.SetupConfirmation{
		Status:      domain.SetupRequiresPaymentMethod,
		DeclineCode: "expired_card",
	}, nil)

	conf, err := newService(p).ConfirmSetup(context.Background(), domain.ConfirmSetupRequest{ClientSecret: "seti_1_secret_x", PaymentMethodID: "pm_1"})
	require.NoError(t, err)
	assert.Equal(t, "expired_card", conf.DeclineCode)
}

// --- StartTrial ---

func TestStartTrial_CreatesWithOfferDays(t *testing.T) {
	p := &mockProvider{}
	p.On("ActiveTrial", "cus_1", "price_1").Return(nil, domain.ErrNotFound)
	p.On("StartTrial", mock.MatchedBy(func(r domain.StartTrialRequest) bool {
		return r.TrialDays == 30 && r.Phone == "+15551234567"
	}), int64(0), mock.AnythingOfType("string")).
		Return(&domain.TrialSubscription{SubscriptionID: "sub_1", Status: "trialing"}, nil)

	sub, err := newService(p).StartTrial(context.Background(), trialReq())
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.SubscriptionID)
	assert.False(t, sub.Reused)
}

func TestStartTrial_ReusesExistingSubscription(t *testing.T) {
	p := &mockProvider{}
	p.On("ActiveTrial", "cus_1", "price_1").Return(&domain.TrialSubscription{SubscriptionID: "sub_old", Status: "trialing", Reused: true}, nil)

	sub, err := newService(p).StartTrial(context.Background(), trialReq())
	require.NoError(t, err)
	assert.Equal(t, "sub_old", sub.SubscriptionID)
	assert.True(t, sub.Reused)
	p.AssertNotCalled(t, "StartTrial", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartTrial_HonorsClientTrialEndWithinTolerance(t *testing.T) {
	end := fixedNow.Add(30*24*time.Hour + 10*time.Minute).Unix()
	p := &mockProvider{}
	p.On("ActiveTrial", "cus_1", "price_1").Return(nil, domain.ErrNotFound)
	p.On("StartTrial", mock.Anything, end, mock.Anything).Return(&domain.TrialSubscription{SubscriptionID: "sub_1", TrialEnd: end}, nil)

	req := trialReq()
	req.TrialEnd = end
	sub, err := newService(p).StartTrial(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, end, sub.TrialEnd)
}

func TestStartTrial_IgnoresClientTrialEndOutsideTolerance(t *testing.T) {
	p := &mockProvider{}
	p.On("ActiveTrial", "cus_1", "price_1").Return(nil, domain.ErrNotFound)
	p.On("StartTrial", mock.Anything, int64(0), mock.Anything).Return(&domain.TrialSubscription{SubscriptionID: "sub_1"}, nil)

	req := trialReq()
	req.TrialEnd = fixedNow.Add(365 * 24 * time.Hour).Unix()
	_, err := newService(p).StartTrial(context.Background(), req)
	require.NoError(t, err)
	p.AssertExpectations(t)
}

func TestStartTrial_UnknownPrice(t *testing.T) {
	p := &mockProvider{}
	req := trialReq()
	req.PriceID = "price_other"

	_, err := newService(p).StartTrial(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	p.AssertNotCalled(t, "ActiveTrial", mock.Anything, mock.Anything)
}

func TestOffer(t *testing.T) {
	assert.Equal(t, testOffer, newService(&mockProvider{}).Offer())
}
