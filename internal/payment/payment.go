// internal/payment/payment.go
package payment

import (
	"context"
	"math"
)

const DefaultApplicationFeePercent = 5.0

type IntentStatus string

const (
	IntentRequiresPayment IntentStatus = "requires_payment"
	IntentProcessing      IntentStatus = "processing"
	IntentSucceeded       IntentStatus = "succeeded"
	IntentCanceled        IntentStatus = "canceled"
)

type RefundStatus string

const (
	RefundSucceeded RefundStatus = "succeeded"
	RefundPending   RefundStatus = "pending"
	RefundFailed    RefundStatus = "failed"
)

type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	AmountMinor  int64
	Currency     string
}

// Completed reports whether the customer's money has been captured.
func (i Intent) Completed() bool {
	return i.Status == IntentSucceeded
}

type CreateIntentInput struct {
	BookingID   int64
	AmountMinor int64
	Currency    string
	// ConnectedAccount receives the charge minus the application fee.
	ConnectedAccount string
	IdempotencyKey   string
}

type RefundInput struct {
	PaymentRef     string
	AmountMinor    int64
	Reason         string
	IdempotencyKey string
}

type Refund struct {
	ID          string
	Status      RefundStatus
	AmountMinor int64
}

// Gateway is the payment processor the booking engine charges and refunds through.
type Gateway interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error)
	GetIntent(ctx context.Context, ref string) (Intent, error)
	CancelIntent(ctx context.Context, ref string) error
	Refund(ctx context.Context, in RefundInput) (Refund, error)
}

// ApplicationFee is percent of amountMinor, rounded half up to a whole minor unit.
func ApplicationFee(amountMinor int64, percent float64) int64 {
	if amountMinor <= 0 || percent <= 0 {
		return 0
	}
	return int64(math.Floor(float64(amountMinor)*percent/100 + 0.5))
}
