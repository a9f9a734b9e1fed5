// internal/notify/events.go
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codr1/courtbook/internal/models"
)

type EventType string

const (
	BookingCreated   EventType = "booking.created"
	BookingConfirmed EventType = "booking.confirmed"
	BookingCancelled EventType = "booking.cancelled"
	BookingReminder  EventType = "booking.reminder"
	BookingFeedback  EventType = "booking.feedback"
)

type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurredAt"`
	Booking    models.Booking `json:"booking"`

	// Filled by the Dispatcher from the directory when available.
	Recipient    string `json:"recipient,omitempty"`
	FacilityName string `json:"facilityName,omitempty"`
	Timezone     string `json:"timezone,omitempty"`

	RefundPercent *int   `json:"refundPercent,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func NewEvent(eventType EventType, booking models.Booking, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		Booking:    booking,
	}
}

// Notifier delivers one event over one channel.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evt Event) error

func (f NotifierFunc) Notify(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}
