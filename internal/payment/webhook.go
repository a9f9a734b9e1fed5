package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

type CallbackKind string

const (
	CallbackSucceeded CallbackKind = "succeeded"
	CallbackFailed    CallbackKind = "failed"
	CallbackIgnored   CallbackKind = "ignored"
)

// Callback is a verified payment outcome for one payment reference.
type Callback struct {
	EventID    string
	Kind       CallbackKind
	PaymentRef string
}

// ParseStripeWebhook verifies the Stripe-Signature header and extracts the
// payment intent outcome. Event types other than success and failure are ignored.
func ParseStripeWebhook(payload []byte, signature, secret string) (Callback, error) {
	// Events are pinned to the account's API version, which can lag or lead
	// the library's; only the fields read below are needed.
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Callback{}, fmt.Errorf("verify stripe webhook: %w", err)
	}

	cb := Callback{EventID: event.ID, Kind: CallbackIgnored}
	switch event.Type {
	case "payment_intent.succeeded":
		cb.Kind = CallbackSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		cb.Kind = CallbackFailed
	default:
		return cb, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return Callback{}, fmt.Errorf("decode payment intent: %w", err)
	}
	cb.PaymentRef = pi.ID
	return cb, nil
}
