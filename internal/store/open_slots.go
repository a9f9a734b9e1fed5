package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/codr1/courtbook/internal/models"
)

// OpenSlots computes the bookable slots of a court on date: the facility's
// operating hours for that weekday split into the court's slot length, minus
// every slot overlapping an active booking or an availability block that
// applies to the court. A facility closed on that weekday has no slots.
func (s *Store) OpenSlots(ctx context.Context, courtID int64, date string) ([]models.TimeRange, error) {
	day, err := models.ParseDate(date)
	if err != nil {
		return nil, err
	}

	court, err := s.GetCourt(ctx, courtID)
	if err != nil {
		return nil, err
	}

	hours, err := s.GetOperatingHours(ctx, court.FacilityID, int(day.Weekday()))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operating hours: %w", err)
	}

	bookings, err := s.ListBookings(ctx, models.BookingFilter{
		CourtID:  &courtID,
		DateFrom: date,
		DateTo:   date,
		Statuses: models.ActiveStatuses,
	})
	if err != nil {
		return nil, err
	}

	blocks, err := s.ListBlocks(ctx, court.FacilityID, date)
	if err != nil {
		return nil, err
	}

	var taken []models.TimeRange
	for _, b := range bookings {
		taken = append(taken, b.TimeRange())
	}
	for _, b := range blocks {
		if b.AllCourts() || *b.CourtID == courtID {
			taken = append(taken, b.Range())
		}
	}

	step := models.ClockTime(court.SlotMinutes)
	var open []models.TimeRange
	for start := hours.Opens; start+step <= hours.Closes; start += step {
		slot := models.TimeRange{Start: start, End: start + step}
		if !overlapsAny(slot, taken) {
			open = append(open, slot)
		}
	}
	return open, nil
}

func overlapsAny(r models.TimeRange, others []models.TimeRange) bool {
	for _, o := range others {
		if r.Overlaps(o) {
			return true
		}
	}
	return false
}
