// internal/booking/statemachine.go
package booking

import (
	"fmt"

	"github.com/codr1/courtbook/internal/models"
)

var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:          {models.StatusConfirmed, models.StatusCancelled, models.StatusAwaitingApproval},
	models.StatusAwaitingApproval: {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:        {models.StatusCompleted, models.StatusCancelled, models.StatusNoShow},
	models.StatusCompleted:        nil,
	models.StatusCancelled:        nil,
	models.StatusNoShow:           nil,
}

type InvalidTransitionError struct {
	From models.BookingStatus
	To   models.BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid booking status transition from %s to %s", e.From, e.To)
}

func CanTransition(from, to models.BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an *InvalidTransitionError unless from -> to is legal.
func CheckTransition(from, to models.BookingStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

func Terminal(status models.BookingStatus) bool {
	return len(transitions[status]) == 0
}

// InitialStatus is confirmed when payment is skipped (cash, manual), else
// awaiting_approval when the organization approves bookings, else pending.
func InitialStatus(skipPayment, requiresApproval bool) models.BookingStatus {
	switch {
	case skipPayment:
		return models.StatusConfirmed
	case requiresApproval:
		return models.StatusAwaitingApproval
	default:
		return models.StatusPending
	}
}
