// internal/api/webhooks/handlers.go
package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/payment"
)

const (
	maxWebhookBytes       = 64 << 10
	webhookHandlerTimeout = 10 * time.Second
)

type Handler struct {
	bookings *booking.Service
	secret   string
}

func NewHandler(bookings *booking.Service, webhookSecret string) *Handler {
	return &Handler{bookings: bookings, secret: webhookSecret}
}

// POST /api/v1/webhooks/stripe
//
// A non-2xx response makes Stripe retry, so only storage failures return 500.
// Bad signatures are rejected with 400 and never retried into success.
func (h *Handler) Stripe(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if h.secret == "" {
		logger.Error().Msg("Stripe webhook received but no webhook secret is configured")
		apiutil.WriteErrorMessage(w, http.StatusServiceUnavailable, "payment webhooks are not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("failed to read body"))
		return
	}

	cb, err := payment.ParseStripeWebhook(payload, r.Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected stripe webhook")
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid webhook"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), webhookHandlerTimeout)
	defer cancel()

	if err := h.bookings.HandlePaymentCallback(ctx, cb); err != nil {
		logger.Error().Err(err).Str("event_id", cb.EventID).Str("payment_ref", cb.PaymentRef).Msg("Failed to apply payment callback")
		apiutil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to process webhook")
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
