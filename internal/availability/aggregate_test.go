package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/courtbook/internal/models"
)

func slotAt(hour int, scheduleID string) models.AvailabilitySlot {
	start := time.Date(2030, 5, 1, hour, 0, 0, 0, time.UTC)
	return models.AvailabilitySlot{Start: start, End: start.Add(time.Hour), Count: 1, ScheduleID: scheduleID}
}

func TestGroupMergesDistinctScheduleIDs(t *testing.T) {
	grouped := Group([]models.AvailabilitySlot{slotAt(10, "a"), slotAt(10, "b")}, 5)

	require.Len(t, grouped, 1)
	assert.Equal(t, 2, grouped[0].CourtCount)
	assert.Len(t, grouped[0].Options, 2)
}

func TestGroupSingleSlotReportsOneCourt(t *testing.T) {
	grouped := Group([]models.AvailabilitySlot{slotAt(10, "a")}, 5)

	require.Len(t, grouped, 1)
	assert.Equal(t, 1, grouped[0].CourtCount)
}

func TestGroupDeduplicatesScheduleIDAndCapsOptions(t *testing.T) {
	slots := []models.AvailabilitySlot{
		slotAt(11, "x"),
		slotAt(9, "a"), slotAt(9, "a"), slotAt(9, "b"), slotAt(9, "c"),
	}
	grouped := Group(slots, 2)

	require.Len(t, grouped, 2)
	assert.Equal(t, 9, grouped[0].Start.Hour())
	assert.Equal(t, 3, grouped[0].CourtCount)
	assert.Len(t, grouped[0].Options, 2)
	assert.Equal(t, 11, grouped[1].Start.Hour())
}

func civilSlotAt(hour int, scheduleID string) models.AvailabilitySlot {
	s := slotAt(hour, scheduleID)
	s.Start, s.End = models.AsCivil(s.Start), models.AsCivil(s.End)
	return s
}

func TestFilterFutureUsesFacilityCivilTime(t *testing.T) {
	// 14:30 UTC is 10:30 in New York (EDT).
	now := time.Date(2030, 5, 1, 14, 30, 0, 0, time.UTC)
	slots := []models.AvailabilitySlot{civilSlotAt(10, "past"), civilSlotAt(11, "future"), civilSlotAt(14, "also-future")}

	local := FilterFuture(slots, "America/New_York", now)
	require.Len(t, local, 2)
	assert.Equal(t, "future", local[0].ScheduleID)

	naive := FilterFuture(slots, "", now)
	assert.Empty(t, naive)

	unknown := FilterFuture(slots, "Mars/Olympus", now)
	assert.Empty(t, unknown)
}

func TestFilterFutureConvertsInstantsToFacilityTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2030, 5, 1, 13, 0, 0, 0, ny)

	// Epoch slots are UTC instants: 16:00Z is noon in New York, 18:00Z is 14:00.
	noon := time.Date(2030, 5, 1, 12, 0, 0, 0, ny).Unix()
	result := Parse([]any{
		map[string]any{"timestamp": float64(noon), "count": float64(1), "scheduleId": "past"},
		map[string]any{"timestamp": float64(noon + 2*3600), "count": float64(1), "scheduleId": "future"},
	})
	require.True(t, result.Success)

	kept := FilterFuture(result.Slots, "America/New_York", now)
	require.Len(t, kept, 1)
	assert.Equal(t, "future", kept[0].ScheduleID)

	// East of UTC: 10:00Z is 19:00 in Tokyo, still ahead of 18:00 there.
	tokyoNow := time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	epoch := Parse([]any{map[string]any{"timestamp": float64(evening), "count": float64(1)}})
	require.True(t, epoch.Success)
	assert.Len(t, FilterFuture(epoch.Slots, "Asia/Tokyo", tokyoNow), 1)

	zoned := ParseJSON([]byte(`[{"time": "2030-05-01T17:00:00+09:00", "count": 1}]`))
	require.True(t, zoned.Success)
	assert.Empty(t, FilterFuture(zoned.Slots, "Asia/Tokyo", tokyoNow))
}

func TestAggregateBucketsInstantsByFacilityDate(t *testing.T) {
	// 02:00Z on May 2 is 22:00 on May 1 in New York.
	late := time.Date(2030, 5, 2, 2, 0, 0, 0, time.UTC)
	slots := []models.AvailabilitySlot{
		{Start: late, End: late.Add(time.Hour), Count: 1, ScheduleID: "epoch"},
		civilSlotAt(22, "civil"),
	}
	now := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)

	grouped := Aggregate(slots, AggregateOptions{Timezone: "America/New_York", Now: now})
	require.Len(t, grouped, 1)
	assert.Equal(t, 2, grouped[0].CourtCount)
	assert.Equal(t, "2030-05-01 22:00", grouped[0].Start.Format("2006-01-02 15:04"))

	dates := GroupByDate(grouped)
	require.Len(t, dates, 1)
	assert.Equal(t, "2030-05-01", dates[0].Date)
}

func TestAggregateCapsAfterSorting(t *testing.T) {
	now := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	slots := []models.AvailabilitySlot{slotAt(15, "d"), slotAt(12, "c"), slotAt(9, "a"), slotAt(9, "b")}

	grouped := Aggregate(slots, AggregateOptions{Now: now, MaxSlots: 2})

	require.Len(t, grouped, 2)
	assert.Equal(t, 9, grouped[0].Start.Hour())
	assert.Equal(t, 2, grouped[0].CourtCount)
	assert.Equal(t, 12, grouped[1].Start.Hour())
}

func TestTimestampListRoundTripThroughGrouping(t *testing.T) {
	result := ParseJSON([]byte(`["2030-05-01T09:00:00", "2030-05-01T09:00:00", "2030-05-01T10:00:00"]`))
	require.True(t, result.Success)

	grouped := Group(result.Slots, 5)
	require.Len(t, grouped, 2)
	assert.Equal(t, 2, grouped[0].CourtCount)
	assert.Equal(t, 1, grouped[1].CourtCount)
}

func TestGroupByDate(t *testing.T) {
	day2 := slotAt(9, "z")
	day2.Start = day2.Start.AddDate(0, 0, 1)
	day2.End = day2.End.AddDate(0, 0, 1)

	groups := GroupByDate(Group([]models.AvailabilitySlot{day2, slotAt(9, "a"), slotAt(10, "b")}, 5))

	require.Len(t, groups, 2)
	assert.Equal(t, "2030-05-01", groups[0].Date)
	assert.Len(t, groups[0].Slots, 2)
	assert.Equal(t, "2030-05-02", groups[1].Date)
}
