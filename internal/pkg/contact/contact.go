// Package contact normalizes and structurally checks email addresses and phone numbers.
// Both the browser-facing endpoints and the checkout client use it so that cache keys
// and verdicts agree on what "the same value" means.
package contact

import (
	"strings"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/pkg/validate"
)

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizePhone strips non-digits and prefixes the North American country
// code on bare 10-digit numbers.
func NormalizePhone(raw string) string {
	d := validate.Digits(raw)
	if len(d) == 10 {
		return "1" + d
	}
	return d
}

// E164 renders a normalized phone as +<digits>.
func E164(normalized string) string {
	if normalized == "" {
		return ""
	}
	return "+" + normalized
}

// CheckEmail runs the structural check on an already normalized address.
func CheckEmail(normalized string) domain.ValidationResult {
	if normalized == "" {
		return structuralInvalid(normalized, "Email is required")
	}
	at := strings.LastIndex(normalized, "@")
	if at <= 0 || at == len(normalized)-1 || strings.Count(normalized, "@") != 1 {
		return structuralInvalid(normalized, "Please enter a valid email address")
	}
	if err := validate.Var(normalized, "email"); err != nil {
		return structuralInvalid(normalized, "Please enter a valid email address")
	}
	return structuralValid(normalized)
}

// CheckPhone runs the structural check on an already normalized phone.
func CheckPhone(normalized string) domain.ValidationResult {
	if normalized == "" {
		return structuralInvalid(normalized, "Phone number is required")
	}
	if len(normalized) < 11 || len(normalized) > 15 {
		return structuralInvalid(normalized, "Please enter a valid phone number")
	}
	if strings.HasPrefix(normalized, "1") && len(normalized) != 11 {
		return structuralInvalid(normalized, "Please enter a valid phone number")
	}
	return structuralValid(normalized)
}

func structuralValid(normalized string) domain.ValidationResult {
	return domain.ValidationResult{
		IsValid:    true,
		Status:     domain.StatusValid,
		Risk:       domain.RiskUnknown,
		Normalized: normalized,
	}
}

func structuralInvalid(normalized, msg string) domain.ValidationResult {
	return domain.ValidationResult{
		IsValid:    false,
		Status:     domain.StatusInvalid,
		Risk:       domain.RiskUnknown,
		Message:    msg,
		Kind:       domain.KindStructural,
		Normalized: normalized,
	}
}
