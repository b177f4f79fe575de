package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrUnavailable  = errors.New("unavailable")
	ErrDuplicate    = errors.New("duplicate")
)

// ProviderCategory is the normalized failure taxonomy for external collaborators.
type ProviderCategory string

const (
	ProviderTimeout     ProviderCategory = "timeout"
	ProviderOutage      ProviderCategory = "provider_outage"
	ProviderRateLimited ProviderCategory = "rate_limited"
	ProviderBadData     ProviderCategory = "bad_data"
	ProviderAuth        ProviderCategory = "authentication"
	ProviderRejected    ProviderCategory = "rejected"
	ProviderDeclined    ProviderCategory = "declined"
	ProviderInternal    ProviderCategory = "internal"
)

// ProviderError wraps a collaborator failure with a normalized category.
type ProviderError struct {
	Category    ProviderCategory
	Provider    string
	Message     string
	DeclineCode string
	Underlying  error
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Provider, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Underlying }

// Degraded reports whether the failure means the collaborator is unavailable
// rather than that it refused the input.
func (e *ProviderError) Degraded() bool {
	switch e.Category {
	case ProviderTimeout, ProviderOutage, ProviderRateLimited, ProviderInternal, ProviderAuth, ProviderBadData:
		return true
	}
	return false
}

// NewProviderError builds a ProviderError.
func NewProviderError(category ProviderCategory, provider, message string, underlying error) *ProviderError {
	return &ProviderError{Category: category, Provider: provider, Message: message, Underlying: underlying}
}

// CategoryFromStatus maps an HTTP status from a collaborator to a category.
func CategoryFromStatus(status int) ProviderCategory {
	switch {
	case status == 429:
		return ProviderRateLimited
	case status == 401 || status == 403:
		return ProviderAuth
	case status == 408 || status == 504:
		return ProviderTimeout
	case status >= 500:
		return ProviderOutage
	case status >= 400:
		return ProviderRejected
	}
	return ProviderInternal
}

// ConfigurationError lists required settings that are missing. It is fatal at startup.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}
