package refund

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/notify"
	"github.com/codr1/courtbook/internal/payment"
	"github.com/codr1/courtbook/internal/store"
)

var (
	ErrForbidden       = errors.New("not allowed to cancel this booking")
	ErrForceNeedsStaff = errors.New("only staff can force a full refund")
)

const (
	failedMessage  = "Your booking was cancelled but the refund could not be processed. Please contact support."
	partialMessage = "Your booking was cancelled but part of the refund could not be processed. Please contact support."
)

type Options struct {
	Gateway payment.Gateway
	Events  booking.EventSink
	Metrics *metrics.Metrics
	Clock   clock.Clock
}

type Service struct {
	store   *store.Store
	gateway payment.Gateway
	events  booking.EventSink
	metrics *metrics.Metrics
	clock   clock.Clock
}

func NewService(st *store.Store, opts Options) *Service {
	return &Service{
		store:   st,
		gateway: opts.Gateway,
		events:  opts.Events,
		metrics: opts.Metrics,
		clock:   clock.Or(opts.Clock),
	}
}

type CancelRequest struct {
	BookingID int64
	ActorID   *int64
	Staff     bool
	Reason    string
	// Force refunds in full regardless of policy.
	Force bool
}

// Outcome reports the cancellation and the refund as separate results.
type Outcome struct {
	Booking  models.Booking      `json:"booking"`
	Decision Decision            `json:"decision"`
	Refunded int64               `json:"refunded"`
	Status   models.RefundStatus `json:"refundStatus"`
	Message  string              `json:"message,omitempty"`
}

// Cancel marks the booking cancelled and then settles the money. Once the
// booking is cancelled, gateway failures only affect the refund status.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (Outcome, error) {
	b, err := s.store.GetBooking(ctx, req.BookingID)
	if err != nil {
		return Outcome{}, err
	}
	if err := authorize(b, req); err != nil {
		return Outcome{}, err
	}
	if err := booking.CheckTransition(b.Status, models.StatusCancelled); err != nil {
		return Outcome{}, err
	}

	facility, err := s.store.GetFacility(ctx, b.FacilityID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load facility: %w", err)
	}
	policy, err := s.store.GetCancellationPolicy(ctx, b.OrganizationID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load cancellation policy: %w", err)
	}

	now := s.clock.Now()
	startsAt, err := models.LocalDateTime(b.Date, b.Start, facility.Location())
	if err != nil {
		return Outcome{}, fmt.Errorf("booking start: %w", err)
	}
	decision := Calculate(b.PriceMinor, startsAt.Sub(now).Hours(), policy)
	if req.Force {
		decision = Full(b.PriceMinor)
	}

	from := b.Status
	changed, err := s.store.MarkCancelled(ctx, b.ID, from, store.Cancellation{
		CancelledBy: req.ActorID,
		Reason:      req.Reason,
		At:          now,
	})
	if err != nil {
		return Outcome{}, err
	}
	if !changed {
		return Outcome{}, booking.ErrStatusChanged
	}
	s.metrics.Transition(string(from), string(models.StatusCancelled))

	logger := log.Ctx(ctx).With().
		Int64("booking_id", b.ID).
		Str("payment_ref", b.PaymentRef).
		Int("refund_percent", decision.Percent).
		Logger()
	logger.Info().Str("from", string(from)).Bool("force", req.Force).Msg("Booking cancelled")

	out := s.settle(ctx, b, decision, &logger)
	if err := s.store.RecordRefund(ctx, b.ID, out.Refunded, out.Status, out.Message); err != nil {
		logger.Error().Err(err).Str("refund_status", string(out.Status)).Msg("Failed to record refund outcome")
	}
	s.metrics.Refund(string(out.Status))

	b.Status = models.StatusCancelled
	b.CancelledBy = req.ActorID
	b.CancelledAt = &now
	b.CancellationReason = req.Reason
	b.RefundAmountMinor = out.Refunded
	b.RefundStatus = out.Status
	b.RefundMessage = out.Message
	out.Booking = b
	out.Decision = decision

	evt := notify.NewEvent(notify.BookingCancelled, b, now)
	evt.Reason = req.Reason
	if out.Status != models.RefundNotRequired {
		percent := decision.Percent
		evt.RefundPercent = &percent
	}
	if s.events != nil {
		s.events.Dispatch(ctx, evt)
	}
	return out, nil
}

func authorize(b models.Booking, req CancelRequest) error {
	if req.Force && !req.Staff {
		return ErrForceNeedsStaff
	}
	if req.Staff {
		return nil
	}
	if req.ActorID == nil || b.PlayerID == nil || *req.ActorID != *b.PlayerID {
		return ErrForbidden
	}
	return nil
}

// settle looks at the gateway's view of the payment, not the booking status.
func (s *Service) settle(ctx context.Context, b models.Booking, decision Decision, logger *zerolog.Logger) Outcome {
	if b.PaymentRef == "" {
		return Outcome{Status: models.RefundNotRequired}
	}
	if s.gateway == nil {
		logger.Error().Msg("Booking has a payment but no gateway is configured")
		return Outcome{Status: models.RefundFailed, Message: failedMessage}
	}

	intent, err := s.gateway.GetIntent(ctx, b.PaymentRef)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve payment intent")
		return Outcome{Status: models.RefundFailed, Message: failedMessage}
	}

	if !intent.Completed() {
		if intent.Status != payment.IntentCanceled {
			if err := s.gateway.CancelIntent(ctx, b.PaymentRef); err != nil {
				logger.Error().Err(err).Str("intent_status", string(intent.Status)).Msg("Failed to cancel payment intent")
				return Outcome{Status: models.RefundFailed, Message: failedMessage}
			}
		}
		return Outcome{Status: models.RefundNotRequired}
	}

	if decision.AmountMinor <= 0 {
		return Outcome{Status: models.RefundOutsideWindow}
	}
	return s.refundInstallments(ctx, b, decision.AmountMinor, logger)
}

// refundInstallments refunds installments in sequence until target is
// reached. A failed installment is skipped so later ones still get refunded.
func (s *Service) refundInstallments(ctx context.Context, b models.Booking, target int64, logger *zerolog.Logger) Outcome {
	installments, err := s.store.ListInstallments(ctx, b.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load payment installments")
		return Outcome{Status: models.RefundFailed, Message: failedMessage}
	}
	if len(installments) == 0 {
		installments = []models.PaymentInstallment{{Sequence: 1, PaymentRef: b.PaymentRef, AmountMinor: b.PriceMinor}}
	}

	remaining := target
	pending := false
	for _, inst := range installments {
		if remaining <= 0 {
			break
		}
		amount := min(remaining, inst.Refundable())
		if amount <= 0 {
			continue
		}

		r, err := s.gateway.Refund(ctx, payment.RefundInput{
			PaymentRef:     inst.PaymentRef,
			AmountMinor:    amount,
			Reason:         "requested_by_customer",
			IdempotencyKey: fmt.Sprintf("booking-%d-refund-%d", b.ID, inst.Sequence),
		})
		if err == nil && r.Status == payment.RefundFailed {
			err = fmt.Errorf("refund %s failed", r.ID)
		}
		if err != nil {
			logger.Error().Err(err).Str("installment_ref", inst.PaymentRef).Int64("amount", amount).Msg("Installment refund failed")
			continue
		}
		if r.Status == payment.RefundPending {
			pending = true
		}
		remaining -= r.AmountMinor
		if inst.ID != 0 {
			if err := s.store.AddInstallmentRefund(ctx, inst.ID, r.AmountMinor); err != nil {
				logger.Error().Err(err).Int64("installment_id", inst.ID).Msg("Failed to record installment refund")
			}
		}
	}

	refunded := target - remaining
	switch {
	case refunded <= 0:
		return Outcome{Status: models.RefundFailed, Message: failedMessage}
	case remaining > 0:
		return Outcome{Refunded: refunded, Status: models.RefundPartial, Message: partialMessage}
	case pending:
		return Outcome{Refunded: refunded, Status: models.RefundPending}
	default:
		return Outcome{Refunded: refunded, Status: models.RefundSucceeded}
	}
}
