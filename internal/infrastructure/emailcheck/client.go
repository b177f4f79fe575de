package emailcheck

import (
	"context"
	"net/http"
	"time"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/infrastructure/httpjson"
)

const provider = "email-verification"

// Client queries the email verification service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client with a bounded per-call timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	Email string `json:"email"`
}

// Check asks the service whether address is deliverable, disposable or a role address.
func (c *Client) Check(ctx context.Context, address string) (*domain.EmailCheck, error) {
	var out domain.EmailCheck
	err := httpjson.Do(ctx, c.httpClient, provider, http.MethodPost, c.baseURL+"/validate",
		c.headers(), checkRequest{Email: address}, &out)
	if err != nil {
		return nil, err
	}
	if out.Risk == "" {
		out.Risk = domain.RiskUnknown
	}
	return &out, nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}
