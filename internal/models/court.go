// internal/models/court.go
package models

import "time"

type CourtStatus string

const (
	CourtAvailable   CourtStatus = "available"
	CourtMaintenance CourtStatus = "maintenance"
	CourtClosed      CourtStatus = "closed"
	CourtReserved    CourtStatus = "reserved"
)

type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Facility struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organizationId"`
	Name           string `json:"name"`
	Timezone       string `json:"timezone"`
	Currency       string `json:"currency"`
}

// Location falls back to UTC when the facility timezone is empty or unknown.
func (f Facility) Location() *time.Location {
	if f.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Court struct {
	ID                int64       `json:"id"`
	FacilityID        int64       `json:"facilityId"`
	Name              string      `json:"name"`
	Status            CourtStatus `json:"status"`
	SlotMinutes       int         `json:"slotMinutes"`
	PricePerHourMinor int64       `json:"pricePerHour"`
}

type OperatingHours struct {
	FacilityID int64     `json:"facilityId"`
	Weekday    int       `json:"weekday"`
	Opens      ClockTime `json:"opensAt"`
	Closes     ClockTime `json:"closesAt"`
}

type PlayerBlock struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organizationId"`
	PlayerID       int64      `json:"playerId"`
	BlockedUntil   *time.Time `json:"blockedUntil,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

// ActiveAt treats a nil BlockedUntil as an indefinite block.
func (b PlayerBlock) ActiveAt(now time.Time) bool {
	return b.BlockedUntil == nil || b.BlockedUntil.After(now)
}

type Player struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organizationId"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
}
