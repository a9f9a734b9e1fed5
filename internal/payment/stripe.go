package payment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway implements Gateway with Stripe payment intents.
type StripeGateway struct {
	api        *client.API
	feePercent float64
}

func NewStripeGateway(secretKey string, feePercent float64) *StripeGateway {
	if feePercent <= 0 {
		feePercent = DefaultApplicationFeePercent
	}
	return &StripeGateway{api: client.New(secretKey, nil), feePercent: feePercent}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountMinor),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("booking_id", strconv.FormatInt(in.BookingID, 10))
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	if in.ConnectedAccount != "" {
		params.ApplicationFeeAmount = stripe.Int64(ApplicationFee(in.AmountMinor, g.feePercent))
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(in.ConnectedAccount),
		}
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, ref string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(ref, params)
	if err != nil {
		return Intent{}, fmt.Errorf("retrieve payment intent %s: %w", ref, err)
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(ref, params); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", ref, err)
	}
	return nil
}

// refundParams maps a refund request onto Stripe's parameters. Stripe only
// accepts its own reason codes; anything else is kept in metadata alone.
func refundParams(ctx context.Context, in RefundInput) *stripe.RefundParams {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(in.PaymentRef),
		Amount:        stripe.Int64(in.AmountMinor),
	}
	params.Context = ctx
	if in.Reason != "" {
		params.AddMetadata("reason", in.Reason)
		switch stripe.RefundReason(in.Reason) {
		case stripe.RefundReasonDuplicate, stripe.RefundReasonFraudulent, stripe.RefundReasonRequestedByCustomer:
			params.Reason = stripe.String(in.Reason)
		}
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	return params
}

func (g *StripeGateway) Refund(ctx context.Context, in RefundInput) (Refund, error) {
	params := refundParams(ctx, in)
	r, err := g.api.Refunds.New(params)
	if err != nil {
		return Refund{}, fmt.Errorf("refund payment %s: %w", in.PaymentRef, err)
	}

	status := RefundPending
	switch r.Status {
	case stripe.RefundStatusSucceeded:
		status = RefundSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		status = RefundFailed
	}
	return Refund{ID: r.ID, Status: status, AmountMinor: r.Amount}, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) Intent {
	status := IntentRequiresPayment
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = IntentSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		status = IntentProcessing
	case stripe.PaymentIntentStatusCanceled:
		status = IntentCanceled
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       status,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
	}
}
