package availability

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/courtbook/internal/models"
)

func TestParseTimedCountObjects(t *testing.T) {
	result := ParseJSON([]byte(`[
		{"startTime": "2030-05-01T10:00:00", "available": 2, "scheduleId": "s-10", "price": 24.5, "currency": "EUR"},
		{"startTime": "2030-05-01T09:00:00", "available": 1, "endTime": "2030-05-01T09:30:00"},
		{"startTime": "not a date", "available": 3},
		{"startTime": "2030-05-01T11:00:00", "available": 0}
	]`))

	require.True(t, result.Success)
	require.Len(t, result.Slots, 2)

	first := result.Slots[0]
	assert.Equal(t, "2030-05-01 09:00", first.Start.Format("2006-01-02 15:04"))
	assert.Equal(t, "09:30", first.End.Format("15:04"))
	assert.Equal(t, 1, first.Count)

	second := result.Slots[1]
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, "s-10", second.ScheduleID)
	assert.Equal(t, "11:00", second.End.Format("15:04"), "missing end defaults to one hour")
	require.NotNil(t, second.Price)
	assert.InDelta(t, 24.5, *second.Price, 0.001)
	assert.Equal(t, "EUR", second.Currency)
}

func TestParseNestedDateMap(t *testing.T) {
	result := ParseJSON([]byte(`{
		"2030-05-02": {"10:00": 1, "09:00": 3},
		"2030-05-01": {"18:30": 2, "bogus": 4},
		"meta": {"09:00": 1}
	}`))

	require.True(t, result.Success)
	require.Len(t, result.Slots, 3)
	assert.Equal(t, "2030-05-01 18:30", result.Slots[0].Start.Format("2006-01-02 15:04"))
	assert.Equal(t, 2, result.Slots[0].Count)
	assert.Equal(t, "2030-05-02 09:00", result.Slots[1].Start.Format("2006-01-02 15:04"))
	assert.Equal(t, 3, result.Slots[1].Count)
}

func TestParseTimestampListGroupsDuplicates(t *testing.T) {
	result := ParseJSON([]byte(`["2030-05-01T10:00:00", "2030-05-01T09:00:00", "2030-05-01T09:00:00", "garbage"]`))

	require.True(t, result.Success)
	require.Len(t, result.Slots, 2)
	assert.Equal(t, "09:00", result.Slots[0].Start.Format("15:04"))
	assert.Equal(t, 2, result.Slots[0].Count)
	assert.Equal(t, "10:00", result.Slots[1].Start.Format("15:04"))
	assert.Equal(t, 1, result.Slots[1].Count)
}

func TestParseStartEndObjects(t *testing.T) {
	result := ParseJSON([]byte(`{"data": [
		{"start": "2030-05-01T08:00:00Z", "end": "2030-05-01T09:30:00Z", "courtName": "Court A", "bookingUrl": "https://x/1"},
		{"start": "2030-05-01T07:00:00Z", "end": "2030-05-01T06:00:00Z"}
	]}`))

	require.True(t, result.Success)
	require.Len(t, result.Slots, 1)
	slot := result.Slots[0]
	assert.Equal(t, 1, slot.Count)
	assert.Equal(t, "Court A", slot.Name)
	assert.Equal(t, "https://x/1", slot.ActionLink)
	assert.Equal(t, 90*time.Minute, slot.End.Sub(slot.Start))
}

func TestParseKeepsOffsetClockVerbatim(t *testing.T) {
	result := ParseJSON([]byte(`[{"time": "2030-05-01T10:00:00+02:00", "count": 1}]`))

	require.True(t, result.Success)
	assert.Equal(t, "10:00", result.Slots[0].Start.Format("15:04"))
}

func TestParseMarksZonelessTimesCivil(t *testing.T) {
	result := ParseJSON([]byte(`[
		{"time": "2030-05-01T09:00:00", "count": 1},
		{"time": "2030-05-01T10:00:00Z", "count": 1},
		{"time": 1904320800, "count": 1}
	]`))

	require.True(t, result.Success)
	require.Len(t, result.Slots, 3)
	assert.True(t, models.IsCivil(result.Slots[0].Start))
	assert.True(t, models.IsCivil(result.Slots[0].End))
	assert.False(t, models.IsCivil(result.Slots[1].Start))
	assert.False(t, models.IsCivil(result.Slots[2].Start))

	nested := ParseJSON([]byte(`{"2030-05-01": {"09:00": 1}}`))
	require.True(t, nested.Success)
	assert.True(t, models.IsCivil(nested.Slots[0].Start))
}

func TestParseEpochSecondsAndMillis(t *testing.T) {
	seconds := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC).Unix()
	result := Parse([]any{
		map[string]any{"timestamp": float64(seconds), "count": float64(1)},
		map[string]any{"timestamp": float64(seconds*1000 + 3600*1000), "count": float64(1)},
		map[string]any{"timestamp": math.NaN(), "count": float64(1)},
		map[string]any{"timestamp": math.Inf(1), "count": float64(1)},
	})

	require.True(t, result.Success)
	require.Len(t, result.Slots, 2)
	assert.Equal(t, "10:00", result.Slots[0].Start.Format("15:04"))
	assert.Equal(t, "11:00", result.Slots[1].Start.Format("15:04"))
}

func TestParseFirstStrategyWins(t *testing.T) {
	// Qualifies for both the timed-count and start/end strategies.
	result := ParseJSON([]byte(`[{"start": "2030-05-01T10:00:00", "end": "2030-05-01T10:30:00", "count": 4}]`))

	require.True(t, result.Success)
	require.Len(t, result.Slots, 1)
	assert.Equal(t, 4, result.Slots[0].Count)
}

func TestParseUnrecognised(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"object without dates", `{"status": "ok"}`},
		{"empty array", `[]`},
		{"numbers only", `[true, false]`},
		{"null", `null`},
		{"invalid json", `{"broken":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseJSON([]byte(tt.payload))
			assert.False(t, result.Success)
			assert.NotEmpty(t, result.Error)
			assert.Empty(t, result.Slots)
		})
	}
}
