package crm

import (
	"context"
	"net/http"
	"time"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/infrastructure/httpjson"
)

const provider = "crm"

// Client upserts contacts into the CRM, keyed by email.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type upsertRequest struct {
	IDProperty string            `json:"id_property"`
	Properties domain.CRMContact `json:"properties"`
}

type upsertResponse struct {
	ID string `json:"id"`
}

// UpsertContact creates or updates the contact and returns the CRM's contact id.
func (c *Client) UpsertContact(ctx context.Context, contact domain.CRMContact) (string, error) {
	var out upsertResponse
	err := httpjson.Do(ctx, c.httpClient, provider, http.MethodPost, c.baseURL+"/crm/v3/objects/contacts/upsert",
		map[string]string{"Authorization": "Bearer " + c.apiKey},
		upsertRequest{IDProperty: "email", Properties: contact}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}
