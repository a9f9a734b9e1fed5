package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// NewTestStore wraps a fresh test database in a Store driven by clk.
func NewTestStore(t *testing.T, clk clock.Clock) *store.Store {
	t.Helper()
	return store.New(NewTestDB(t), clk)
}

// Fixture is the minimal bookable world most tests start from.
type Fixture struct {
	Organization models.Organization
	Facility     models.Facility
	Court        models.Court
	Player       models.Player
}

// Seed creates one organization with one UTC facility open 08:00-22:00 every
// day, one available court with hourly slots at 20.00 per hour, and one player.
func Seed(t *testing.T, st *store.Store) Fixture {
	t.Helper()
	ctx := context.Background()

	org, err := st.CreateOrganization(ctx, "Test Club")
	if err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	facility, err := st.CreateFacility(ctx, models.Facility{
		OrganizationID: org.ID,
		Name:           "Main Facility",
		Timezone:       "UTC",
		Currency:       "usd",
	})
	if err != nil {
		t.Fatalf("seed facility: %v", err)
	}
	for weekday := 0; weekday < 7; weekday++ {
		if err := st.SetOperatingHours(ctx, models.OperatingHours{
			FacilityID: facility.ID,
			Weekday:    weekday,
			Opens:      8 * 60,
			Closes:     22 * 60,
		}); err != nil {
			t.Fatalf("seed operating hours: %v", err)
		}
	}
	court := AddCourt(t, st, facility.ID, "Court 1")
	player, err := st.CreatePlayer(ctx, models.Player{
		OrganizationID: org.ID,
		Name:           "Pat Player",
		Email:          "pat@example.com",
	})
	if err != nil {
		t.Fatalf("seed player: %v", err)
	}

	return Fixture{Organization: org, Facility: facility, Court: court, Player: player}
}

func AddCourt(t *testing.T, st *store.Store, facilityID int64, name string) models.Court {
	t.Helper()
	court, err := st.CreateCourt(context.Background(), models.Court{
		FacilityID:        facilityID,
		Name:              name,
		Status:            models.CourtAvailable,
		SlotMinutes:       60,
		PricePerHourMinor: 2000,
	})
	if err != nil {
		t.Fatalf("seed court: %v", err)
	}
	return court
}

// InsertBooking stores a booking on the fixture court with the given status.
func (f Fixture) InsertBooking(t *testing.T, st *store.Store, date string, start, end models.ClockTime, status models.BookingStatus) models.Booking {
	t.Helper()
	b, err := st.CreateBooking(context.Background(), models.Booking{
		OrganizationID: f.Organization.ID,
		FacilityID:     f.Facility.ID,
		CourtID:        f.Court.ID,
		PlayerID:       &f.Player.ID,
		Date:           date,
		Start:          start,
		End:            end,
		Status:         status,
		PriceMinor:     2000,
		Currency:       "usd",
	})
	if err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	return b
}
