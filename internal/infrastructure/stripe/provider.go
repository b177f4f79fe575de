package stripeinfra

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/trialsignup/signup/internal/domain"
)

const providerName = "billing"

// Metadata keys written on customers and subscriptions.
const (
	MetaAffiliateID = "affiliate_id"
	MetaSource      = "signup_source"
)

// Provider implements the billing collaborator on Stripe.
type Provider struct {
	api *client.API
}

// NewProvider creates a provider using secretKey. backends may be nil; tests
// pass a backend pointed at an httptest server.
func NewProvider(secretKey string, backends *stripe.Backends) *Provider {
	return &Provider{api: client.New(secretKey, backends)}
}

// FindCustomerByEmail returns the first customer with email, or domain.ErrNotFound.
func (p *Provider) FindCustomerByEmail(email string) (*domain.Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Limit = stripe.Int64(1)
	it := p.api.Customers.List(params)
	for it.Next() {
		return toCustomer(it.Customer()), nil
	}
	if err := it.Err(); err != nil {
		return nil, classify(err, "list customers")
	}
	return nil, fmt.Errorf("customer %s: %w", email, domain.ErrNotFound)
}

// CreateCustomer creates a customer from req.
func (p *Provider) CreateCustomer(req domain.EnsureCustomerRequest, idempotencyKey string) (*domain.Customer, error) {
	params := customerParams(req)
	params.Email = stripe.String(req.Email)
	params.SetIdempotencyKey(idempotencyKey)
	c, err := p.api.Customers.New(params)
	if err != nil {
		return nil, classify(err, "create customer")
	}
	return toCustomer(c), nil
}

// UpdateCustomer refreshes contact fields and attribution on an existing customer.
func (p *Provider) UpdateCustomer(customerID string, req domain.EnsureCustomerRequest) (*domain.Customer, error) {
	c, err := p.api.Customers.Update(customerID, customerParams(req))
	if err != nil {
		return nil, classify(err, "update customer")
	}
	return toCustomer(c), nil
}

// GetCustomer fetches a customer by id.
func (p *Provider) GetCustomer(customerID string) (*domain.Customer, error) {
	c, err := p.api.Customers.Get(customerID, nil)
	if err != nil {
		return nil, classify(err, "get customer")
	}
	if c.Deleted {
		return nil, fmt.Errorf("customer %s deleted: %w", customerID, domain.ErrNotFound)
	}
	return toCustomer(c), nil
}

// CreateSetupIntent creates an off-session card setup intent for customerID.
func (p *Provider) CreateSetupIntent(customerID, idempotencyKey string) (string, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	params.SetIdempotencyKey(idempotencyKey)
	si, err := p.api.SetupIntents.New(params)
	if err != nil {
		return "", classify(err, "create setup intent")
	}
	return si.ClientSecret, nil
}

// ConfirmSetup confirms the setup intent identified by clientSecret with paymentMethodID.
// Card declines are reported in the confirmation, not as an error.
func (p *Provider) ConfirmSetup(clientSecret, paymentMethodID string) (*domain.SetupConfirmation, error) {
	si, err := p.setupIntentFor(clientSecret)
	if err != nil {
		return nil, err
	}
	confirmed, err := p.api.SetupIntents.Confirm(si.ID, &stripe.SetupIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	})
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			return &domain.SetupConfirmation{
				Status:       domain.SetupRequiresPaymentMethod,
				DeclineCode:  declineCode(serr),
				ErrorMessage: serr.Msg,
			}, nil
		}
		return nil, classify(err, "confirm setup intent")
	}
	return toConfirmation(confirmed), nil
}

// SetupStatus reports the current status of the setup intent behind clientSecret.
func (p *Provider) SetupStatus(clientSecret string) (*domain.SetupConfirmation, error) {
	si, err := p.setupIntentFor(clientSecret)
	if err != nil {
		return nil, err
	}
	return toConfirmation(si), nil
}

// ActiveTrial returns an existing trialing or active subscription of customerID, or domain.ErrNotFound.
func (p *Provider) ActiveTrial(customerID, priceID string) (*domain.TrialSubscription, error) {
	params := &stripe.SubscriptionListParams{Customer: stripe.String(customerID)}
	params.Status = stripe.String("all")
	it := p.api.Subscriptions.List(params)
	for it.Next() {
		s := it.Subscription()
		if s.Status != stripe.SubscriptionStatusTrialing && s.Status != stripe.SubscriptionStatusActive {
			continue
		}
		if !hasPrice(s, priceID) {
			continue
		}
		return &domain.TrialSubscription{SubscriptionID: s.ID, Status: string(s.Status), TrialEnd: s.TrialEnd, Reused: true}, nil
	}
	if err := it.Err(); err != nil {
		return nil, classify(err, "list subscriptions")
	}
	return nil, fmt.Errorf("subscription for %s: %w", customerID, domain.ErrNotFound)
}

// StartTrial creates the trial subscription. trialEnd wins over trialDays when non-zero.
func (p *Provider) StartTrial(req domain.StartTrialRequest, trialEnd int64, idempotencyKey string) (*domain.TrialSubscription, error) {
	if _, err := p.api.Customers.Update(req.CustomerID, &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(req.PaymentMethodID),
		},
	}); err != nil {
		return nil, classify(err, "set default payment method")
	}

	params := &stripe.SubscriptionParams{
		Customer:             stripe.String(req.CustomerID),
		DefaultPaymentMethod: stripe.String(req.PaymentMethodID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
	}
	if trialEnd > 0 {
		params.TrialEnd = stripe.Int64(trialEnd)
	} else {
		params.TrialPeriodDays = stripe.Int64(int64(req.TrialDays))
	}
	params.AddMetadata(MetaAffiliateID, req.AffiliateID)
	params.AddMetadata("email", req.Email)
	params.AddMetadata("first_name", req.FirstName)
	params.AddMetadata("last_name", req.LastName)
	params.AddMetadata("phone", req.Phone)
	params.SetIdempotencyKey(idempotencyKey)

	s, err := p.api.Subscriptions.New(params)
	if err != nil {
		return nil, classify(err, "create subscription")
	}
	return &domain.TrialSubscription{SubscriptionID: s.ID, Status: string(s.Status), TrialEnd: s.TrialEnd}, nil
}

func (p *Provider) setupIntentFor(clientSecret string) (*stripe.SetupIntent, error) {
	id := SetupIntentID(clientSecret)
	if id == "" {
		return nil, fmt.Errorf("malformed client secret: %w", domain.ErrBadRequest)
	}
	si, err := p.api.SetupIntents.Get(id, nil)
	if err != nil {
		return nil, classify(err, "get setup intent")
	}
	if si.ClientSecret != clientSecret {
		return nil, fmt.Errorf("client secret mismatch: %w", domain.ErrUnauthorized)
	}
	return si, nil
}

// SetupIntentID extracts the setup intent id from a client secret of the form seti_X_secret_Y.
func SetupIntentID(clientSecret string) string {
	i := strings.Index(clientSecret, "_secret_")
	if i <= 0 || !strings.HasPrefix(clientSecret, "seti_") {
		return ""
	}
	return clientSecret[:i]
}

func customerParams(req domain.EnsureCustomerRequest) *stripe.CustomerParams {
	params := &stripe.CustomerParams{
		Name:  stripe.String(strings.TrimSpace(req.FirstName + " " + req.LastName)),
		Phone: stripe.String(req.Phone),
	}
	if req.ZipCode != "" {
		params.Address = &stripe.AddressParams{PostalCode: stripe.String(req.ZipCode)}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata(MetaAffiliateID, req.AffiliateID)
	params.AddMetadata(MetaSource, "trial_checkout")
	params.AddMetadata("first_name", req.FirstName)
	params.AddMetadata("last_name", req.LastName)
	return params
}

func toCustomer(c *stripe.Customer) *domain.Customer {
	return &domain.Customer{
		ID:          c.ID,
		Email:       c.Email,
		Name:        c.Name,
		Phone:       c.Phone,
		AffiliateID: c.Metadata[MetaAffiliateID],
		Metadata:    c.Metadata,
	}
}

func toConfirmation(si *stripe.SetupIntent) *domain.SetupConfirmation {
	out := &domain.SetupConfirmation{Status: domain.SetupStatus(si.Status)}
	if si.PaymentMethod != nil {
		out.PaymentMethodID = si.PaymentMethod.ID
	}
	if si.NextAction != nil && si.NextAction.RedirectToURL != nil {
		out.NextActionURL = si.NextAction.RedirectToURL.URL
	}
	if si.LastSetupError != nil {
		out.DeclineCode = declineCode(si.LastSetupError)
		out.ErrorMessage = si.LastSetupError.Msg
	}
	return out
}

func declineCode(e *stripe.Error) string {
	if e.DeclineCode != "" {
		return string(e.DeclineCode)
	}
	return string(e.Code)
}

func hasPrice(s *stripe.Subscription, priceID string) bool {
	if s.Items == nil {
		return false
	}
	for _, item := range s.Items.Data {
		if item.Price != nil && item.Price.ID == priceID {
			return true
		}
	}
	return false
}

func classify(err error, op string) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return domain.NewProviderError(domain.ProviderOutage, providerName, op, err)
	}
	switch {
	case serr.Type == stripe.ErrorTypeCard:
		pe := domain.NewProviderError(domain.ProviderDeclined, providerName, op, err)
		pe.DeclineCode = declineCode(serr)
		return pe
	case serr.HTTPStatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case serr.HTTPStatusCode == 0:
		return domain.NewProviderError(domain.ProviderOutage, providerName, op, err)
	}
	return domain.NewProviderError(domain.CategoryFromStatus(serr.HTTPStatusCode), providerName, op, err)
}
