// internal/booking/service.go
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/notify"
	"github.com/codr1/courtbook/internal/payment"
	"github.com/codr1/courtbook/internal/store"
)

var (
	// ErrSlotTaken means another booking won the race for the same slot.
	ErrSlotTaken = errors.New("this time slot has already been booked")
	// ErrStatusChanged means the booking moved on between read and write.
	ErrStatusChanged = errors.New("booking status changed concurrently")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// EventSink receives booking events; delivery must never fail the caller.
type EventSink interface {
	Dispatch(ctx context.Context, evt notify.Event)
}

type Options struct {
	Gateway          payment.Gateway
	Events           EventSink
	Metrics          *metrics.Metrics
	Clock            clock.Clock
	ConnectedAccount string
}

type Service struct {
	store            *store.Store
	validator        *Validator
	gateway          payment.Gateway
	events           EventSink
	metrics          *metrics.Metrics
	clock            clock.Clock
	connectedAccount string
}

func NewService(st *store.Store, opts Options) *Service {
	clk := clock.Or(opts.Clock)
	return &Service{
		store:            st,
		validator:        NewValidator(st, clk),
		gateway:          opts.Gateway,
		events:           opts.Events,
		metrics:          opts.Metrics,
		clock:            clk,
		connectedAccount: opts.ConnectedAccount,
	}
}

type CreateRequest struct {
	CourtID     int64            `json:"courtId"`
	PlayerID    *int64           `json:"playerId,omitempty"`
	BookingType string           `json:"bookingType,omitempty"`
	Date        string           `json:"date"`
	Start       models.ClockTime `json:"startTime"`
	End         models.ClockTime `json:"endTime"`
	// SkipPayment books as confirmed without charging (cash, manual).
	SkipPayment bool `json:"skipPayment"`
}

type CreateResult struct {
	Booking      models.Booking `json:"booking"`
	ClientSecret string         `json:"clientSecret,omitempty"`
}

// Create validates the candidate, inserts it in its initial status and, when
// payment is due, opens a payment intent for the price. A concurrent booking
// of the same slot surfaces as ErrSlotTaken.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	logger := log.Ctx(ctx).With().Int64("court_id", req.CourtID).Str("date", req.Date).Logger()

	checked, err := s.validator.Validate(ctx, Candidate{
		CourtID:  req.CourtID,
		PlayerID: req.PlayerID,
		Date:     req.Date,
		Start:    req.Start,
		End:      req.End,
	})
	if err != nil {
		return CreateResult{}, err
	}

	price := Price(checked.Court, req.Start, req.End)
	skipPayment := req.SkipPayment || price == 0
	status := InitialStatus(skipPayment, checked.Settings.RequiresApproval)

	bookingType := strings.TrimSpace(req.BookingType)
	if bookingType == "" {
		bookingType = models.DefaultBookingType
	}

	b, err := s.store.CreateBooking(ctx, models.Booking{
		OrganizationID:   checked.Facility.OrganizationID,
		FacilityID:       checked.Facility.ID,
		CourtID:          checked.Court.ID,
		PlayerID:         req.PlayerID,
		BookingType:      bookingType,
		Date:             req.Date,
		Start:            req.Start,
		End:              req.End,
		Status:           status,
		PriceMinor:       price,
		Currency:         checked.Facility.Currency,
		RequiresApproval: checked.Settings.RequiresApproval,
	})
	if db.IsExclusionViolation(err) {
		s.metrics.BookingConflict()
		logger.Info().Msg("Booking lost slot race")
		return CreateResult{}, ErrSlotTaken
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("create booking: %w", err)
	}
	s.metrics.BookingCreated(string(b.Status))
	logger = logger.With().Int64("booking_id", b.ID).Str("status", string(b.Status)).Logger()

	var result CreateResult
	if !skipPayment && s.gateway != nil {
		intent, err := s.openPayment(ctx, &b)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to open payment for booking")
			s.releaseUnpaid(ctx, b)
			return CreateResult{}, fmt.Errorf("open payment: %w", err)
		}
		result.ClientSecret = intent.ClientSecret
	}
	result.Booking = b

	logger.Info().Msg("Booking created")
	s.emit(ctx, notify.BookingCreated, b)
	return result, nil
}

func (s *Service) openPayment(ctx context.Context, b *models.Booking) (payment.Intent, error) {
	intent, err := s.gateway.CreateIntent(ctx, payment.CreateIntentInput{
		BookingID:        b.ID,
		AmountMinor:      b.PriceMinor,
		Currency:         b.Currency,
		ConnectedAccount: s.connectedAccount,
		IdempotencyKey:   fmt.Sprintf("booking-%d-intent", b.ID),
	})
	if err != nil {
		return payment.Intent{}, err
	}
	err = s.store.RunInTx(ctx, func(tx *store.Store) error {
		if _, err := tx.AddInstallment(ctx, models.PaymentInstallment{
			BookingID:   b.ID,
			Sequence:    1,
			PaymentRef:  intent.ID,
			AmountMinor: intent.AmountMinor,
		}); err != nil {
			return err
		}
		return tx.SetPaymentRef(ctx, b.ID, intent.ID)
	})
	if err != nil {
		if cancelErr := s.gateway.CancelIntent(ctx, intent.ID); cancelErr != nil {
			log.Ctx(ctx).Error().Err(cancelErr).Str("payment_ref", intent.ID).Msg("Failed to cancel orphaned payment intent")
		}
		return payment.Intent{}, fmt.Errorf("record payment %s: %w", intent.ID, err)
	}
	b.PaymentRef = intent.ID
	return intent, nil
}

// releaseUnpaid frees the slot of a booking whose payment could not be set up.
func (s *Service) releaseUnpaid(ctx context.Context, b models.Booking) {
	if _, err := s.store.MarkCancelled(ctx, b.ID, b.Status, store.Cancellation{
		Reason: "payment setup failed",
		At:     s.clock.Now(),
	}); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("booking_id", b.ID).Msg("Failed to release unpaid booking")
	}
}

// Price charges the court's hourly rate pro rata, rounded to the nearest minor unit.
func Price(court models.Court, start, end models.ClockTime) int64 {
	minutes := int64(end - start)
	if minutes <= 0 || court.PricePerHourMinor <= 0 {
		return 0
	}
	return (court.PricePerHourMinor*minutes + 30) / 60
}

func (s *Service) Get(ctx context.Context, id int64) (models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// List applies the default page size and rejects malformed filters.
func (s *Service) List(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	for _, raw := range []string{f.DateFrom, f.DateTo} {
		if raw == "" {
			continue
		}
		if _, err := models.ParseDate(raw); err != nil {
			return nil, &ValidationError{Reason: err.Error()}
		}
	}
	if f.DateFrom != "" && f.DateTo != "" && f.DateFrom > f.DateTo {
		return nil, invalid("dateFrom must not be after dateTo")
	}
	for _, status := range f.Statuses {
		if !status.Valid() {
			return nil, invalid("Unknown booking status %q", status)
		}
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.store.ListBookings(ctx, f)
}

// Transition applies a staff status change: approve, complete or no-show.
// Cancellation goes through the refund engine instead.
func (s *Service) Transition(ctx context.Context, id int64, to models.BookingStatus) (models.Booking, error) {
	if !to.Valid() {
		return models.Booking{}, invalid("Unknown booking status %q", to)
	}
	if to == models.StatusCancelled {
		return models.Booking{}, invalid("Use cancellation to cancel a booking")
	}

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	if err := CheckTransition(b.Status, to); err != nil {
		return models.Booking{}, err
	}

	changed, err := s.store.TransitionStatus(ctx, id, b.Status, to)
	if err != nil {
		return models.Booking{}, err
	}
	if !changed {
		return models.Booking{}, ErrStatusChanged
	}
	s.metrics.Transition(string(b.Status), string(to))
	log.Ctx(ctx).Info().
		Int64("booking_id", id).
		Str("from", string(b.Status)).
		Str("to", string(to)).
		Msg("Booking status changed")

	b.Status = to
	if to == models.StatusConfirmed {
		s.emit(ctx, notify.BookingConfirmed, b)
	}
	return b, nil
}

// HandlePaymentCallback applies a gateway outcome to the booking holding the
// payment reference. Only pending bookings move; anything else is a no-op so
// replayed webhooks succeed. An unknown reference is logged and ignored.
func (s *Service) HandlePaymentCallback(ctx context.Context, cb payment.Callback) error {
	if cb.Kind == payment.CallbackIgnored || cb.PaymentRef == "" {
		return nil
	}
	logger := log.Ctx(ctx).With().Str("payment_ref", cb.PaymentRef).Str("event_id", cb.EventID).Logger()

	b, err := s.store.GetBookingByPaymentRef(ctx, cb.PaymentRef)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn().Msg("Payment callback for unknown booking ignored")
		return nil
	}
	if err != nil {
		return err
	}
	if b.Status != models.StatusPending {
		logger.Debug().Int64("booking_id", b.ID).Str("status", string(b.Status)).Msg("Payment callback already applied")
		return nil
	}

	switch cb.Kind {
	case payment.CallbackSucceeded:
		changed, err := s.store.TransitionStatus(ctx, b.ID, models.StatusPending, models.StatusConfirmed)
		if err != nil || !changed {
			return err
		}
		s.metrics.Transition(string(models.StatusPending), string(models.StatusConfirmed))
		b.Status = models.StatusConfirmed
		logger.Info().Int64("booking_id", b.ID).Msg("Booking confirmed by payment")
		s.emit(ctx, notify.BookingConfirmed, b)
	case payment.CallbackFailed:
		reason := "payment failed"
		changed, err := s.store.MarkCancelled(ctx, b.ID, models.StatusPending, store.Cancellation{
			Reason: reason,
			At:     s.clock.Now(),
		})
		if err != nil || !changed {
			return err
		}
		s.metrics.Transition(string(models.StatusPending), string(models.StatusCancelled))
		b.Status = models.StatusCancelled
		b.CancellationReason = reason
		logger.Info().Int64("booking_id", b.ID).Msg("Booking cancelled after failed payment")
		evt := notify.NewEvent(notify.BookingCancelled, b, s.clock.Now())
		evt.Reason = reason
		s.dispatch(ctx, evt)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType notify.EventType, b models.Booking) {
	s.dispatch(ctx, notify.NewEvent(eventType, b, s.clock.Now()))
}

func (s *Service) dispatch(ctx context.Context, evt notify.Event) {
	if s.events != nil {
		s.events.Dispatch(ctx, evt)
	}
}
