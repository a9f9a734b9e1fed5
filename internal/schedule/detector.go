// internal/schedule/detector.go
package schedule

import (
	"context"
	"fmt"

	"github.com/codr1/courtbook/internal/models"
)

// ConflictStore is what the detector reads.
type ConflictStore interface {
	ListBlocks(ctx context.Context, facilityID int64, date string) ([]models.AvailabilityBlock, error)
	ListBookingsOnDate(ctx context.Context, facilityID int64, courtIDs []int64, date string, exclude ...models.BookingStatus) ([]models.Booking, error)
}

type Conflicts struct {
	Blocks   []models.AvailabilityBlock `json:"blocks"`
	Bookings []models.Booking           `json:"bookings"`
}

func (c Conflicts) Empty() bool {
	return len(c.Blocks) == 0 && len(c.Bookings) == 0
}

// ConflictError carries both conflict sets so staff can see what is in the way.
type ConflictError struct {
	Conflicts
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("block conflicts with %d existing blocks and %d bookings", len(e.Blocks), len(e.Bookings))
}

type Detector struct {
	store ConflictStore
}

func NewDetector(st ConflictStore) *Detector {
	return &Detector{store: st}
}

// Check returns every existing block and non-cancelled booking the candidate
// block would overlap. Both sets are always computed.
func (d *Detector) Check(ctx context.Context, candidate models.AvailabilityBlock) (Conflicts, error) {
	var out Conflicts

	existing, err := d.store.ListBlocks(ctx, candidate.FacilityID, candidate.Date)
	if err != nil {
		return Conflicts{}, fmt.Errorf("load blocks: %w", err)
	}
	for _, b := range existing {
		if b.ID != 0 && b.ID == candidate.ID {
			continue
		}
		if BlocksOverlap(candidate, b) {
			out.Blocks = append(out.Blocks, b)
		}
	}

	var courts []int64
	if !candidate.AllCourts() {
		courts = []int64{*candidate.CourtID}
	}
	bookings, err := d.store.ListBookingsOnDate(ctx, candidate.FacilityID, courts, candidate.Date, models.StatusCancelled)
	if err != nil {
		return Conflicts{}, fmt.Errorf("load bookings: %w", err)
	}
	for _, b := range bookings {
		if BookingBlocked(candidate, b) {
			out.Bookings = append(out.Bookings, b)
		}
	}

	return out, nil
}

// BlocksOverlap: the blocks share a court (either being facility-wide counts)
// and either is all-day or their half-open ranges intersect.
func BlocksOverlap(a, b models.AvailabilityBlock) bool {
	if a.Date != b.Date {
		return false
	}
	sameCourt := a.AllCourts() || b.AllCourts() || *a.CourtID == *b.CourtID
	if !sameCourt {
		return false
	}
	if a.AllDay() || b.AllDay() {
		return true
	}
	return a.Range().Overlaps(b.Range())
}

func BookingBlocked(block models.AvailabilityBlock, b models.Booking) bool {
	if block.Date != b.Date {
		return false
	}
	if !block.AllCourts() && *block.CourtID != b.CourtID {
		return false
	}
	if block.AllDay() {
		return true
	}
	return block.Range().Overlaps(b.TimeRange())
}
