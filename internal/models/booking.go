// internal/models/booking.go
package models

import "time"

type BookingStatus string

const (
	StatusPending          BookingStatus = "pending"
	StatusAwaitingApproval BookingStatus = "awaiting_approval"
	StatusConfirmed        BookingStatus = "confirmed"
	StatusCompleted        BookingStatus = "completed"
	StatusCancelled        BookingStatus = "cancelled"
	StatusNoShow           BookingStatus = "no_show"
)

// ActiveStatuses hold their slot; the store's overlap constraint covers exactly these.
var ActiveStatuses = []BookingStatus{StatusPending, StatusAwaitingApproval, StatusConfirmed}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAwaitingApproval, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s BookingStatus) Active() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

type RefundStatus string

const (
	RefundNone          RefundStatus = ""
	RefundPending       RefundStatus = "pending"
	RefundSucceeded     RefundStatus = "succeeded"
	RefundPartial       RefundStatus = "partial"
	RefundFailed        RefundStatus = "failed"
	RefundNotRequired   RefundStatus = "not_required"
	RefundOutsideWindow RefundStatus = "no_refund_outside_window"
)

const DefaultBookingType = "standard"

type Booking struct {
	ID               int64         `json:"id"`
	OrganizationID   int64         `json:"organizationId"`
	FacilityID       int64         `json:"facilityId"`
	CourtID          int64         `json:"courtId"`
	PlayerID         *int64        `json:"playerId,omitempty"`
	BookingType      string        `json:"bookingType"`
	Date             string        `json:"date"`
	Start            ClockTime     `json:"startTime"`
	End              ClockTime     `json:"endTime"`
	Status           BookingStatus `json:"status"`
	PriceMinor       int64         `json:"price"`
	Currency         string        `json:"currency"`
	PaymentRef       string        `json:"paymentReference,omitempty"`
	RequiresApproval bool          `json:"requiresApproval"`

	RefundAmountMinor int64        `json:"refundAmount"`
	RefundStatus      RefundStatus `json:"refundStatus,omitempty"`
	RefundMessage     string       `json:"refundMessage,omitempty"`

	CancelledBy        *int64     `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CancellationReason string     `json:"cancellationReason,omitempty"`

	ReminderSentAt *time.Time `json:"-"`
	FeedbackSentAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (b Booking) TimeRange() TimeRange {
	return TimeRange{Start: b.Start, End: b.End}
}

// PaymentInstallment is one gateway charge towards a booking's price.
type PaymentInstallment struct {
	ID            int64  `json:"id"`
	BookingID     int64  `json:"bookingId"`
	Sequence      int    `json:"sequence"`
	PaymentRef    string `json:"paymentReference"`
	AmountMinor   int64  `json:"amount"`
	RefundedMinor int64  `json:"refunded"`
}

func (i PaymentInstallment) Refundable() int64 {
	remaining := i.AmountMinor - i.RefundedMinor
	if remaining < 0 {
		return 0
	}
	return remaining
}

type BookingFilter struct {
	OrganizationID *int64
	FacilityID     *int64
	CourtID        *int64
	PlayerID       *int64
	DateFrom       string
	DateTo         string
	Statuses       []BookingStatus
	BookingType    string
	Limit          uint64
	Offset         uint64
}
