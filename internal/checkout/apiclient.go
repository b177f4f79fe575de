package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trialsignup/signup/internal/domain"
)

// APIError is a non-2xx answer from the signup API.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("signup api: status %d: %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("signup api: status %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

// APIClient calls the signup API served by cmd/api.
type APIClient struct {
	baseURL string
	http    *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) Offer(ctx context.Context) (*domain.PricingOffer, error) {
	var out domain.PricingOffer
	if err := c.do(ctx, http.MethodGet, "/v1/offer", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) EnsureCustomer(ctx context.Context, req domain.EnsureCustomerRequest) (*domain.CustomerResponse, error) {
	var out domain.CustomerResponse
	if err := c.do(ctx, http.MethodPost, "/v1/customers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) CreateSetupIntent(ctx context.Context, req domain.SetupIntentRequest) (*domain.SetupIntentResponse, error) {
	var out domain.SetupIntentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/setup-intents", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ConfirmSetup(ctx context.Context, clientSecret, paymentMethodID string) (*domain.SetupConfirmation, error) {
	var out domain.SetupConfirmation
	req := domain.ConfirmSetupRequest{ClientSecret: clientSecret, PaymentMethodID: paymentMethodID}
	if err := c.do(ctx, http.MethodPost, "/v1/setup-intents/confirm", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) SetupStatus(ctx context.Context, clientSecret string) (*domain.SetupConfirmation, error) {
	var out domain.SetupConfirmation
	if err := c.do(ctx, http.MethodPost, "/v1/setup-intents/status", domain.SetupStatusRequest{ClientSecret: clientSecret}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) StartTrial(ctx context.Context, req domain.StartTrialRequest) (*TrialResult, error) {
	var out TrialResult
	if err := c.do(ctx, http.MethodPost, "/v1/trials", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateEmail is the email RemoteFunc.
func (c *APIClient) ValidateEmail(ctx context.Context, normalized string, _ Options) (domain.ValidationResult, error) {
	var out domain.ValidationResult
	err := c.do(ctx, http.MethodPost, "/v1/validate/email", domain.ValidateEmailRequest{Email: normalized}, &out)
	return out, err
}

// ValidatePhone is the phone RemoteFunc. The name is scored against the number.
func (c *APIClient) ValidatePhone(ctx context.Context, normalized string, opts Options) (domain.ValidationResult, error) {
	var out domain.ValidationResult
	err := c.do(ctx, http.MethodPost, "/v1/validate/phone", domain.ValidatePhoneRequest{Phone: normalized, FirstName: opts.Name}, &out)
	return out, err
}

// RequestPhoneCode sends a one-time code to phone.
func (c *APIClient) RequestPhoneCode(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodPost, "/v1/phone-verification/request", domain.PhoneVerificationRequest{Phone: phone}, nil)
}

// ConfirmPhoneCode checks a one-time code. A wrong code is an *APIError with status 401.
func (c *APIClient) ConfirmPhoneCode(ctx context.Context, phone, code string) error {
	return c.do(ctx, http.MethodPost, "/v1/phone-verification/validate-code", domain.PhoneVerificationRequest{Phone: phone, Code: code}, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&eb)
		if eb.Error == "" {
			eb.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: eb.Error, Code: eb.ErrorCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ServerWidget is a PaymentWidget for headless use: the API confirms the setup
// intent with an already tokenized payment method, and a challenge is handed
// to Challenge before the intent is polled for its final status.
type ServerWidget struct {
	API             *APIClient
	PaymentMethodID string
	Challenge       func(ctx context.Context, url string) error
	PollInterval    time.Duration
	MaxPolls        int
}

func (w *ServerWidget) Confirm(ctx context.Context, clientSecret string) (*domain.SetupConfirmation, error) {
	return w.API.ConfirmSetup(ctx, clientSecret, w.PaymentMethodID)
}

// CompleteAction returns the first status that is no longer pending, or the
// last one seen when MaxPolls runs out.
func (w *ServerWidget) CompleteAction(ctx context.Context, clientSecret string, pending *domain.SetupConfirmation) (*domain.SetupConfirmation, error) {
	if w.Challenge != nil {
		if err := w.Challenge(ctx, pending.NextActionURL); err != nil {
			return nil, fmt.Errorf("payment challenge: %w", err)
		}
	}
	interval, polls := w.PollInterval, w.MaxPolls
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if polls <= 0 {
		polls = 30
	}
	last := pending
	for i := 0; i < polls; i++ {
		conf, err := w.API.SetupStatus(ctx, clientSecret)
		if err != nil {
			return nil, err
		}
		last = conf
		if conf.Status != domain.SetupRequiresAction && conf.Status != domain.SetupProcessing {
			return conf, nil
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return nil, err
		}
	}
	return last, nil
}
