// Package httpjson is the shared JSON-over-HTTP call path for external collaborators.
// Failures come back as *domain.ProviderError so callers can tell a degraded
// collaborator from one that refused the input.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/trialsignup/signup/internal/domain"
)

// maxErrorBody bounds how much of an error response is kept for the message.
const maxErrorBody = 2048

// Do sends in (when non-nil) as a JSON body and decodes a 2xx response into out (when non-nil).
func Do(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return domain.NewProviderError(domain.ProviderInternal, provider, "marshal request body", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return domain.NewProviderError(domain.ProviderInternal, provider, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.NewProviderError(transportCategory(err), provider, "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.NewProviderError(domain.CategoryFromStatus(resp.StatusCode), provider,
			fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewProviderError(domain.ProviderBadData, provider, "decode response", err)
	}
	return nil
}

func transportCategory(err error) domain.ProviderCategory {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ProviderTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.ProviderTimeout
	}
	return domain.ProviderOutage
}
