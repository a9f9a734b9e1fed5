// internal/models/slot.go
package models

import "time"

// Civil marks times read without a zone or offset. Their clock fields are the
// facility's wall clock, not an instant.
var Civil = time.FixedZone("civil", 0)

// AvailabilitySlot is one externally sourced bookable interval. Start and End
// are either Civil (facility wall clock) or real instants; it is built per
// fetch and never persisted.
type AvailabilitySlot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Count      int       `json:"count"`
	ResourceID string    `json:"resourceId,omitempty"`
	ScheduleID string    `json:"scheduleId,omitempty"`
	Name       string    `json:"name,omitempty"`
	Price      *float64  `json:"price,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	ActionLink string    `json:"actionLink,omitempty"`
}

func IsCivil(t time.Time) bool {
	return t.Location() == Civil
}

// AsCivil keeps t's clock fields and marks them as wall-clock time.
func AsCivil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), Civil)
}

// InLocation places t on loc's wall clock. Civil times keep their clock
// fields; instants are converted.
func InLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	if IsCivil(t) {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	}
	return t.In(loc)
}
