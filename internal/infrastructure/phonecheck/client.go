package phonecheck

import (
	"context"
	"net/http"
	"time"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/infrastructure/httpjson"
)

const provider = "phone-verification"

// Client queries the phone verification service for line type and name/phone identity match.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// Check validates an E.164 number, scoring it against name when name is non-empty.
func (c *Client) Check(ctx context.Context, e164, name string) (*domain.PhoneCheck, error) {
	var out domain.PhoneCheck
	err := httpjson.Do(ctx, c.httpClient, provider, http.MethodPost, c.baseURL+"/phone_intel",
		map[string]string{"x-api-key": c.apiKey}, checkRequest{Phone: e164, Name: name}, &out)
	if err != nil {
		return nil, err
	}
	if name == "" {
		out.IdentityMatchScore = nil
	}
	return &out, nil
}
