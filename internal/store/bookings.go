package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
)

var bookingColumns = []string{
	"id", "organization_id", "facility_id", "court_id", "player_id", "booking_type",
	"booking_date", "start_minute", "end_minute", "status", "price_minor", "currency",
	"payment_ref", "requires_approval", "refund_amount_minor", "refund_status",
	"refund_message", "cancelled_by", "cancelled_at", "cancellation_reason",
	"reminder_sent_at", "feedback_sent_at", "created_at", "updated_at",
}

func scanBooking(row scanner) (models.Booking, error) {
	var (
		b                                       models.Booking
		playerID, cancelledBy                   sql.NullInt64
		paymentRef, refundStatus, refundMessage sql.NullString
		cancellationReason                      sql.NullString
		cancelledAt, reminderSentAt, feedbackAt sql.NullTime
		start, end                              int
		status                                  string
	)
	err := row.Scan(
		&b.ID, &b.OrganizationID, &b.FacilityID, &b.CourtID, &playerID, &b.BookingType,
		&b.Date, &start, &end, &status, &b.PriceMinor, &b.Currency,
		&paymentRef, &b.RequiresApproval, &b.RefundAmountMinor, &refundStatus,
		&refundMessage, &cancelledBy, &cancelledAt, &cancellationReason,
		&reminderSentAt, &feedbackAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return models.Booking{}, err
	}
	b.PlayerID = int64Ptr(playerID)
	b.Start = models.ClockTime(start)
	b.End = models.ClockTime(end)
	b.Status = models.BookingStatus(status)
	b.PaymentRef = paymentRef.String
	b.RefundStatus = models.RefundStatus(refundStatus.String)
	b.RefundMessage = refundMessage.String
	b.CancelledBy = int64Ptr(cancelledBy)
	b.CancelledAt = timePtr(cancelledAt)
	b.CancellationReason = cancellationReason.String
	b.ReminderSentAt = timePtr(reminderSentAt)
	b.FeedbackSentAt = timePtr(feedbackAt)
	return b, nil
}

func collectBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func statusStrings(statuses []models.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// CreateBooking inserts b and returns it with its id and timestamps set.
// An overlap with an active booking surfaces as an error for which
// db.IsExclusionViolation reports true.
func (s *Store) CreateBooking(ctx context.Context, b models.Booking) (models.Booking, error) {
	if b.BookingType == "" {
		b.BookingType = models.DefaultBookingType
	}
	now := s.now()
	b.CreatedAt = now
	b.UpdatedAt = now

	id, err := s.insertReturningID(ctx, s.sql().Insert("bookings").
		Columns(
			"organization_id", "facility_id", "court_id", "player_id", "booking_type",
			"booking_date", "start_minute", "end_minute", "status", "price_minor",
			"currency", "payment_ref", "requires_approval", "created_at", "updated_at",
		).
		Values(
			b.OrganizationID, b.FacilityID, b.CourtID, nullInt64(b.PlayerID), b.BookingType,
			b.Date, b.Start.Minutes(), b.End.Minutes(), string(b.Status), b.PriceMinor,
			b.Currency, nullString(b.PaymentRef), b.RequiresApproval, now, now,
		))
	if err != nil {
		return models.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	b.ID = id
	return b, nil
}

func (s *Store) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	row, err := s.queryRow(ctx, s.sql().Select(bookingColumns...).From("bookings").Where(sq.Eq{"id": id}))
	if err != nil {
		return models.Booking{}, err
	}
	b, err := scanBooking(row)
	if err != nil {
		return models.Booking{}, fmt.Errorf("get booking %d: %w", id, notFound(err))
	}
	return b, nil
}

func (s *Store) GetBookingByPaymentRef(ctx context.Context, ref string) (models.Booking, error) {
	row, err := s.queryRow(ctx, s.sql().Select(bookingColumns...).From("bookings").Where(sq.Eq{"payment_ref": ref}))
	if err != nil {
		return models.Booking{}, err
	}
	b, err := scanBooking(row)
	if err != nil {
		return models.Booking{}, fmt.Errorf("get booking by payment ref: %w", notFound(err))
	}
	return b, nil
}

func (s *Store) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	where := sq.And{}
	if f.OrganizationID != nil {
		where = append(where, sq.Eq{"organization_id": *f.OrganizationID})
	}
	if f.FacilityID != nil {
		where = append(where, sq.Eq{"facility_id": *f.FacilityID})
	}
	if f.CourtID != nil {
		where = append(where, sq.Eq{"court_id": *f.CourtID})
	}
	if f.PlayerID != nil {
		where = append(where, sq.Eq{"player_id": *f.PlayerID})
	}
	if f.DateFrom != "" {
		where = append(where, sq.GtOrEq{"booking_date": f.DateFrom})
	}
	if f.DateTo != "" {
		where = append(where, sq.LtOrEq{"booking_date": f.DateTo})
	}
	if len(f.Statuses) > 0 {
		where = append(where, sq.Eq{"status": statusStrings(f.Statuses)})
	}
	if f.BookingType != "" {
		where = append(where, sq.Eq{"booking_type": f.BookingType})
	}

	q := s.sql().Select(bookingColumns...).
		From("bookings").
		Where(where).
		OrderBy("booking_date", "start_minute", "id")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collectBookings(rows)
}

// ListBookingsOnDate returns bookings on date for the given courts, or for
// every court of the facility when courtIDs is empty, excluding the given statuses.
func (s *Store) ListBookingsOnDate(ctx context.Context, facilityID int64, courtIDs []int64, date string, exclude ...models.BookingStatus) ([]models.Booking, error) {
	where := sq.And{
		sq.Eq{"facility_id": facilityID},
		sq.Eq{"booking_date": date},
	}
	if len(courtIDs) > 0 {
		where = append(where, sq.Eq{"court_id": courtIDs})
	}
	if len(exclude) > 0 {
		where = append(where, sq.NotEq{"status": statusStrings(exclude)})
	}

	rows, err := s.query(ctx, s.sql().Select(bookingColumns...).
		From("bookings").
		Where(where).
		OrderBy("court_id", "start_minute"))
	if err != nil {
		return nil, fmt.Errorf("list bookings on date: %w", err)
	}
	return collectBookings(rows)
}

// TransitionStatus moves booking id from one status to another only if it is
// still in from. It reports whether a row changed.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to models.BookingStatus) (bool, error) {
	res, err := s.exec(ctx, s.sql().Update("bookings").
		Set("status", string(to)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id, "status": string(from)}))
	if err != nil {
		return false, fmt.Errorf("transition booking %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition booking %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) SetPaymentRef(ctx context.Context, id int64, ref string) error {
	res, err := s.exec(ctx, s.sql().Update("bookings").
		Set("payment_ref", nullString(ref)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id}))
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("payment ref %s already recorded: %w", ref, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("set payment ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set payment ref on booking %d: %w", id, ErrNotFound)
	}
	return nil
}

type Cancellation struct {
	CancelledBy *int64
	Reason      string
	At          time.Time
}

// MarkCancelled cancels booking id if its current status is from.
// It reports whether a row changed.
func (s *Store) MarkCancelled(ctx context.Context, id int64, from models.BookingStatus, c Cancellation) (bool, error) {
	at := c.At.UTC()
	res, err := s.exec(ctx, s.sql().Update("bookings").
		Set("status", string(models.StatusCancelled)).
		Set("cancelled_by", nullInt64(c.CancelledBy)).
		Set("cancelled_at", at).
		Set("cancellation_reason", nullString(c.Reason)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id, "status": string(from)}))
	if err != nil {
		return false, fmt.Errorf("cancel booking %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel booking %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) RecordRefund(ctx context.Context, id int64, amountMinor int64, status models.RefundStatus, message string) error {
	_, err := s.exec(ctx, s.sql().Update("bookings").
		Set("refund_amount_minor", amountMinor).
		Set("refund_status", nullString(string(status))).
		Set("refund_message", nullString(message)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("record refund on booking %d: %w", id, err)
	}
	return nil
}

// ListUnsentBookings returns bookings on any of dates in one of statuses
// whose marker column (reminder_sent_at or feedback_sent_at) is still null.
func (s *Store) ListUnsentBookings(ctx context.Context, marker string, dates []string, statuses ...models.BookingStatus) ([]models.Booking, error) {
	if marker != ReminderMarker && marker != FeedbackMarker {
		return nil, fmt.Errorf("unknown marker column %q", marker)
	}
	where := sq.And{
		sq.Eq{"booking_date": dates},
		sq.Eq{marker: nil},
	}
	if len(statuses) > 0 {
		where = append(where, sq.Eq{"status": statusStrings(statuses)})
	}
	rows, err := s.query(ctx, s.sql().Select(bookingColumns...).
		From("bookings").
		Where(where).
		OrderBy("booking_date", "start_minute", "id"))
	if err != nil {
		return nil, fmt.Errorf("list unsent bookings: %w", err)
	}
	return collectBookings(rows)
}

const (
	ReminderMarker = "reminder_sent_at"
	FeedbackMarker = "feedback_sent_at"
)

// StampSent sets the marker column once; it reports false when it was already set.
func (s *Store) StampSent(ctx context.Context, id int64, marker string) (bool, error) {
	if marker != ReminderMarker && marker != FeedbackMarker {
		return false, fmt.Errorf("unknown marker column %q", marker)
	}
	res, err := s.exec(ctx, s.sql().Update("bookings").
		Set(marker, s.now()).
		Where(sq.Eq{"id": id, marker: nil}))
	if err != nil {
		return false, fmt.Errorf("stamp %s on booking %d: %w", marker, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
