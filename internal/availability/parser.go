// internal/availability/parser.go
package availability

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

const defaultSlotLength = time.Hour

type ParseResult struct {
	Slots   []models.AvailabilitySlot `json:"slots"`
	Success bool                      `json:"success"`
	Error   string                    `json:"error,omitempty"`
}

// strategy returns the slots it recognised in payload, or none.
type strategy struct {
	name  string
	parse func(payload any) []models.AvailabilitySlot
}

// strategies run in order of specificity; the first that yields a slot wins.
var strategies = []strategy{
	{"objects with time and count", parseTimedCounts},
	{"nested date and time map", parseNestedDateMap},
	{"timestamp list", parseTimestampList},
	{"objects with start and end", parseStartEndObjects},
}

var (
	datetimeKeys   = []string{"start", "startTime", "start_time", "startsAt", "starts_at", "datetime", "dateTime", "date_time", "time", "timestamp", "slot"}
	endKeys        = []string{"end", "endTime", "end_time", "endsAt", "ends_at", "finish"}
	countKeys      = []string{"count", "available", "availableCount", "available_count", "courts", "courtCount", "court_count", "capacity", "spots", "quantity"}
	resourceIDKeys = []string{"resourceId", "resource_id", "courtId", "court_id", "id"}
	scheduleIDKeys = []string{"scheduleId", "schedule_id", "slotId", "slot_id"}
	nameKeys       = []string{"name", "title", "courtName", "court_name", "label"}
	priceKeys      = []string{"price", "amount", "cost", "fee"}
	currencyKeys   = []string{"currency", "currencyCode", "currency_code"}
	linkKeys       = []string{"actionLink", "action_link", "bookingUrl", "booking_url", "link", "url"}
	wrapperKeys    = []string{"data", "slots", "availability", "results", "items"}
)

var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Parse normalises an external availability payload of unknown shape.
// It never panics; an unrecognised shape yields Success false.
func Parse(payload any) ParseResult {
	if payload == nil {
		return ParseResult{Slots: []models.AvailabilitySlot{}, Error: "empty availability payload"}
	}

	for _, s := range strategies {
		slots := s.parse(payload)
		if len(slots) == 0 {
			continue
		}
		sort.SliceStable(slots, func(i, j int) bool {
			return slots[i].Start.Before(slots[j].Start)
		})
		return ParseResult{Slots: slots, Success: true}
	}

	return ParseResult{
		Slots: []models.AvailabilitySlot{},
		Error: "unrecognised availability format: no parsing strategy produced a slot",
	}
}

// ParseJSON decodes data and parses it. Invalid JSON is reported, not returned.
func ParseJSON(data []byte) ParseResult {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return ParseResult{Slots: []models.AvailabilitySlot{}, Error: "invalid availability JSON: " + err.Error()}
	}
	return Parse(payload)
}

// parseTimedCounts handles [{"time": ..., "count": ...}, ...].
func parseTimedCounts(payload any) []models.AvailabilitySlot {
	var slots []models.AvailabilitySlot
	for _, item := range unwrapArray(payload) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		start, ok := lookupTime(obj, datetimeKeys)
		if !ok {
			continue
		}
		count, ok := lookupCount(obj)
		if !ok || count <= 0 {
			continue
		}
		end, ok := lookupTime(obj, endKeys)
		if !ok || !end.After(start) {
			end = start.Add(defaultSlotLength)
		}
		slots = append(slots, buildSlot(obj, start, end, count))
	}
	return slots
}

// parseNestedDateMap handles {"2024-05-01": {"09:00": 2, "10:00": 1}}.
func parseNestedDateMap(payload any) []models.AvailabilitySlot {
	root, ok := payload.(map[string]any)
	if !ok {
		return nil
	}

	var slots []models.AvailabilitySlot
	for dateKey, inner := range root {
		day, err := models.ParseDate(dateKey)
		if err != nil {
			continue
		}
		times, ok := inner.(map[string]any)
		if !ok {
			continue
		}
		for timeKey, raw := range times {
			at, err := models.ParseClockTime(timeKey)
			if err != nil {
				continue
			}
			count, ok := toCount(raw)
			if !ok || count <= 0 {
				continue
			}
			start := models.AsCivil(day).Add(time.Duration(at) * time.Minute)
			slots = append(slots, models.AvailabilitySlot{
				Start: start,
				End:   start.Add(defaultSlotLength),
				Count: count,
			})
		}
	}
	return slots
}

// parseTimestampList handles ["2024-05-01T09:00", "2024-05-01T09:00", ...],
// where each repetition is one more interchangeable court.
func parseTimestampList(payload any) []models.AvailabilitySlot {
	counts := map[string]int{}
	var order []time.Time
	for _, item := range unwrapArray(payload) {
		t, ok := toTime(item)
		if !ok {
			continue
		}
		key := t.Format(time.RFC3339Nano)
		if counts[key] == 0 {
			order = append(order, t)
		}
		counts[key]++
	}

	slots := make([]models.AvailabilitySlot, 0, len(order))
	for _, t := range order {
		slots = append(slots, models.AvailabilitySlot{
			Start: t,
			End:   t.Add(defaultSlotLength),
			Count: counts[t.Format(time.RFC3339Nano)],
		})
	}
	return slots
}

// parseStartEndObjects handles [{"start": ..., "end": ...}, ...] with no count.
func parseStartEndObjects(payload any) []models.AvailabilitySlot {
	var slots []models.AvailabilitySlot
	for _, item := range unwrapArray(payload) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		start, ok := lookupTime(obj, datetimeKeys)
		if !ok {
			continue
		}
		end, ok := lookupTime(obj, endKeys)
		if !ok || !end.After(start) {
			continue
		}
		count := 1
		if c, ok := lookupCount(obj); ok {
			if c <= 0 {
				continue
			}
			count = c
		}
		slots = append(slots, buildSlot(obj, start, end, count))
	}
	return slots
}

func buildSlot(obj map[string]any, start, end time.Time, count int) models.AvailabilitySlot {
	slot := models.AvailabilitySlot{
		Start:      start,
		End:        end,
		Count:      count,
		ResourceID: lookupString(obj, resourceIDKeys),
		ScheduleID: lookupString(obj, scheduleIDKeys),
		Name:       lookupString(obj, nameKeys),
		Currency:   lookupString(obj, currencyKeys),
		ActionLink: lookupString(obj, linkKeys),
	}
	if price, ok := lookupNumber(obj, priceKeys); ok {
		slot.Price = &price
	}
	return slot
}

// unwrapArray returns payload as an array, looking one level into common
// wrapper objects such as {"data": [...]}.
func unwrapArray(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range wrapperKeys {
			if arr, ok := v[key].([]any); ok {
				return arr
			}
		}
	}
	return nil
}

func lookupTime(obj map[string]any, keys []string) (time.Time, bool) {
	for _, key := range keys {
		if raw, ok := obj[key]; ok {
			if t, ok := toTime(raw); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func lookupCount(obj map[string]any) (int, bool) {
	for _, key := range countKeys {
		if raw, ok := obj[key]; ok {
			if n, ok := toCount(raw); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func lookupNumber(obj map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		if raw, ok := obj[key]; ok {
			if f, ok := toFloat(raw); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func lookupString(obj map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if isFinite(v) {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// toTime accepts RFC 3339 strings (offset kept verbatim), zone-less local
// strings (marked models.Civil) and epoch seconds or milliseconds (UTC instants).
func toTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		return parseTimeString(v)
	case float64:
		return fromEpoch(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	case int:
		return fromEpoch(float64(v))
	case int64:
		return fromEpoch(float64(v))
	}
	return time.Time{}, false
}

func parseTimeString(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, value, models.Civil); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if !isFinite(f) || f <= 0 {
		return time.Time{}, false
	}
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	return time.Unix(int64(f), 0).UTC(), true
}

func toCount(raw any) (int, bool) {
	switch v := raw.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		f, ok := toFloat(raw)
		if !ok {
			return 0, false
		}
		return int(f), true
	}
}

func toFloat(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	return f, isFinite(f)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ParseTime applies the parser's datetime rules to a single value.
func ParseTime(raw any) (time.Time, bool) {
	return toTime(raw)
}
