// internal/booking/validator.go
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

// ValidationError carries a reason that is safe to show to the user.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

var courtStatusReasons = map[models.CourtStatus]string{
	models.CourtMaintenance: "This court is under maintenance and cannot be booked",
	models.CourtClosed:      "This court is closed",
	models.CourtReserved:    "This court is reserved and not open for booking",
}

// Candidate is a slot a player or staff member wants to book.
type Candidate struct {
	CourtID  int64
	PlayerID *int64
	Date     string
	Start    models.ClockTime
	End      models.ClockTime
}

func (c Candidate) Range() models.TimeRange {
	return models.TimeRange{Start: c.Start, End: c.End}
}

// ValidatorStore is the slice of the store the validator reads.
type ValidatorStore interface {
	GetCourt(ctx context.Context, id int64) (models.Court, error)
	GetFacility(ctx context.Context, id int64) (models.Facility, error)
	OpenSlots(ctx context.Context, courtID int64, date string) ([]models.TimeRange, error)
	GetOrganizationSettings(ctx context.Context, organizationID int64) (models.OrganizationSettings, error)
	ActivePlayerBlock(ctx context.Context, organizationID, playerID int64, now time.Time) (*models.PlayerBlock, error)
}

// Checked is what validation resolved about a candidate.
type Checked struct {
	Court    models.Court
	Facility models.Facility
	Settings models.OrganizationSettings
	// StartsAt is the candidate start in facility local time.
	StartsAt time.Time
}

type Validator struct {
	store ValidatorStore
	clock clock.Clock
}

func NewValidator(st ValidatorStore, clk clock.Clock) *Validator {
	return &Validator{store: st, clock: clock.Or(clk)}
}

// Validate runs the court, open-slot, organization and player-block checks
// in that order and stops at the first failure. Rejections are
// *ValidationError; any other error is an infrastructure failure.
func (v *Validator) Validate(ctx context.Context, c Candidate) (Checked, error) {
	if _, err := models.ParseDate(c.Date); err != nil {
		return Checked{}, invalid("Invalid booking date %q", c.Date)
	}
	if !c.Range().Valid() {
		return Checked{}, invalid("Booking end time must be after its start time")
	}

	court, err := v.store.GetCourt(ctx, c.CourtID)
	if errors.Is(err, store.ErrNotFound) {
		return Checked{}, invalid("Court not found")
	}
	if err != nil {
		return Checked{}, fmt.Errorf("load court: %w", err)
	}
	if court.Status != models.CourtAvailable {
		reason, ok := courtStatusReasons[court.Status]
		if !ok {
			reason = "This court is not available for booking"
		}
		return Checked{}, &ValidationError{Reason: reason}
	}

	facility, err := v.store.GetFacility(ctx, court.FacilityID)
	if err != nil {
		return Checked{}, fmt.Errorf("load facility: %w", err)
	}

	open, err := v.store.OpenSlots(ctx, court.ID, c.Date)
	if err != nil {
		return Checked{}, fmt.Errorf("compute open slots: %w", err)
	}
	if !containsExact(open, c.Range()) {
		return Checked{}, invalid("The selected time slot is not available")
	}

	settings, err := v.store.GetOrganizationSettings(ctx, facility.OrganizationID)
	if err != nil {
		return Checked{}, fmt.Errorf("load organization settings: %w", err)
	}

	loc := facility.Location()
	now := v.clock.Now().In(loc)
	startsAt, err := models.LocalDateTime(c.Date, c.Start, loc)
	if err != nil {
		return Checked{}, invalid("Invalid booking date %q", c.Date)
	}
	if err := checkWindows(settings, c.Date, startsAt, now); err != nil {
		return Checked{}, err
	}

	if c.PlayerID != nil {
		block, err := v.store.ActivePlayerBlock(ctx, facility.OrganizationID, *c.PlayerID, v.clock.Now())
		if err != nil {
			return Checked{}, fmt.Errorf("check player block: %w", err)
		}
		if block != nil {
			if block.BlockedUntil != nil {
				return Checked{}, invalid("You are blocked from booking at this organization until %s",
					block.BlockedUntil.In(loc).Format("Jan 2, 2006 3:04 PM"))
			}
			return Checked{}, invalid("You are blocked from booking at this organization")
		}
	}

	return Checked{Court: court, Facility: facility, Settings: settings, StartsAt: startsAt}, nil
}

func checkWindows(settings models.OrganizationSettings, date string, startsAt, now time.Time) error {
	if !startsAt.After(now) {
		return invalid("Cannot book a time slot that has already started")
	}
	if date == now.Format(models.DateLayout) && !settings.SameDayBookingEnabled {
		return invalid("Same-day bookings are not allowed")
	}
	if settings.MinNoticeHours > 0 && startsAt.Sub(now) < time.Duration(settings.MinNoticeHours)*time.Hour {
		return invalid("Bookings require at least %d hours notice", settings.MinNoticeHours)
	}
	if settings.MaxAdvanceDays > 0 {
		today, _ := models.ParseDate(now.Format(models.DateLayout))
		latest := today.AddDate(0, 0, settings.MaxAdvanceDays).Format(models.DateLayout)
		if date > latest {
			return invalid("Bookings can only be made up to %d days in advance", settings.MaxAdvanceDays)
		}
	}
	return nil
}

func containsExact(slots []models.TimeRange, want models.TimeRange) bool {
	for _, slot := range slots {
		if slot == want {
			return true
		}
	}
	return false
}
