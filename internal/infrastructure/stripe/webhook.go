package stripeinfra

import (
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/trialsignup/signup/internal/domain"
)

// ParseEvent verifies the signature header against secret and extracts the
// identifiers CRM sync needs. Signature failures wrap domain.ErrUnauthorized.
// The account's API version may differ from the SDK's; only raw object fields are read.
func ParseEvent(payload []byte, signature, secret string) (*domain.BillingEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %v: %w", err, domain.ErrUnauthorized)
	}

	out := &domain.BillingEvent{
		EventID: event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return out, nil
	}
	obj := event.Data.Object
	objID, _ := obj["id"].(string)
	switch obj["object"] {
	case "customer":
		out.CustomerID = objID
	case "subscription":
		out.SubscriptionID = objID
		out.CustomerID = nestedID(obj["customer"])
	default:
		out.CustomerID = nestedID(obj["customer"])
	}
	return out, nil
}

// nestedID reads an expandable reference, which is either an id string or an object with an id.
func nestedID(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		id, _ := t["id"].(string)
		return id
	}
	return ""
}
