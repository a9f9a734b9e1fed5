// internal/models/block.go
package models

import "time"

type BlockType string

const (
	BlockMaintenance BlockType = "maintenance"
	BlockClosure     BlockType = "closure"
	BlockEvent       BlockType = "event"
	BlockOther       BlockType = "other"
)

// AvailabilityBlock withholds a court (or every court when CourtID is nil) on a date.
// Nil Start and End mean the whole day.
type AvailabilityBlock struct {
	ID         int64      `json:"id"`
	FacilityID int64      `json:"facilityId"`
	CourtID    *int64     `json:"courtId,omitempty"`
	Date       string     `json:"date"`
	Start      *ClockTime `json:"startTime,omitempty"`
	End        *ClockTime `json:"endTime,omitempty"`
	BlockType  BlockType  `json:"blockType"`
	Reason     string     `json:"reason,omitempty"`
	CreatedBy  *int64     `json:"createdBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (b AvailabilityBlock) AllDay() bool {
	return b.Start == nil || b.End == nil
}

func (b AvailabilityBlock) AllCourts() bool {
	return b.CourtID == nil
}

// Range returns the blocked interval, the whole day for all-day blocks.
func (b AvailabilityBlock) Range() TimeRange {
	if b.AllDay() {
		return TimeRange{Start: 0, End: minutesPerDay}
	}
	return TimeRange{Start: *b.Start, End: *b.End}
}
