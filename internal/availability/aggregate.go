// internal/availability/aggregate.go
package availability

import (
	"sort"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

const civilLayout = "2006-01-02 15:04:05"

const (
	DefaultMaxOptions = 5
	DefaultMaxSlots   = 50
)

// GroupedSlot is one display row: a (start, end) window and the distinct
// courts that offer it.
type GroupedSlot struct {
	Start      time.Time                 `json:"start"`
	End        time.Time                 `json:"end"`
	CourtCount int                       `json:"courtCount"`
	Options    []models.AvailabilitySlot `json:"options"`
}

type DateGroup struct {
	Date  string        `json:"date"`
	Slots []GroupedSlot `json:"slots"`
}

type AggregateOptions struct {
	// Timezone is the facility's IANA zone; empty compares instants directly.
	Timezone   string
	Now        time.Time
	MaxOptions int
	MaxSlots   int
}

// Aggregate filters slots to the future, places them on the facility's wall
// clock, groups identical windows and caps the sorted result.
func Aggregate(slots []models.AvailabilitySlot, opts AggregateOptions) []GroupedSlot {
	if opts.MaxOptions <= 0 {
		opts.MaxOptions = DefaultMaxOptions
	}
	if opts.MaxSlots <= 0 {
		opts.MaxSlots = DefaultMaxSlots
	}

	future := FilterFuture(slots, opts.Timezone, opts.Now)
	if loc := loadLocation(opts.Timezone); loc != nil {
		future = Localize(future, loc)
	}
	grouped := Group(future, opts.MaxOptions)
	if len(grouped) > opts.MaxSlots {
		grouped = grouped[:opts.MaxSlots]
	}
	return grouped
}

func loadLocation(timezone string) *time.Location {
	if timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil
	}
	return loc
}

// FilterFuture keeps slots that start after now. With a timezone the
// comparison is between civil date-times: the current wall clock in that
// zone against the slot's wall clock there. Zone-less slots already hold
// that wall clock; zoned and epoch slots are converted first. Without a
// zone, or with an unknown one, instants are compared.
func FilterFuture(slots []models.AvailabilitySlot, timezone string, now time.Time) []models.AvailabilitySlot {
	loc := loadLocation(timezone)

	future := make([]models.AvailabilitySlot, 0, len(slots))
	if loc == nil {
		for _, s := range slots {
			if s.Start.After(now) {
				future = append(future, s)
			}
		}
		return future
	}

	localNow := now.In(loc).Format(civilLayout)
	for _, s := range slots {
		if models.InLocation(s.Start, loc).Format(civilLayout) > localNow {
			future = append(future, s)
		}
	}
	return future
}

// Localize returns copies of slots with Start and End on loc's wall clock, so
// grouping and date bucketing see facility-local dates.
func Localize(slots []models.AvailabilitySlot, loc *time.Location) []models.AvailabilitySlot {
	out := make([]models.AvailabilitySlot, len(slots))
	for i, s := range slots {
		s.Start = models.InLocation(s.Start, loc)
		s.End = models.InLocation(s.End, loc)
		out[i] = s
	}
	return out
}

type windowKey struct {
	start, end string
}

// Group merges slots sharing a (start, end) window. Options are deduplicated
// by schedule id and at most maxOptions are kept, but CourtCount sums the
// counts of every distinct option. Groups are sorted by start.
func Group(slots []models.AvailabilitySlot, maxOptions int) []GroupedSlot {
	if maxOptions <= 0 {
		maxOptions = DefaultMaxOptions
	}

	index := map[windowKey]int{}
	seen := map[windowKey]map[string]bool{}
	var groups []GroupedSlot

	for _, s := range slots {
		key := windowKey{s.Start.Format(civilLayout), s.End.Format(civilLayout)}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			seen[key] = map[string]bool{}
			groups = append(groups, GroupedSlot{Start: s.Start, End: s.End})
		}

		if s.ScheduleID != "" {
			if seen[key][s.ScheduleID] {
				continue
			}
			seen[key][s.ScheduleID] = true
		}

		count := s.Count
		if count <= 0 {
			count = 1
		}
		groups[i].CourtCount += count
		if len(groups[i].Options) < maxOptions {
			groups[i].Options = append(groups[i].Options, s)
		}
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Start.Format(civilLayout) < groups[b].Start.Format(civilLayout)
	})
	return groups
}

// GroupByDate buckets grouped slots by the calendar date of their own wall
// clock, preserving order. Localize first for facility-local dates.
func GroupByDate(slots []GroupedSlot) []DateGroup {
	var out []DateGroup
	index := map[string]int{}
	for _, s := range slots {
		date := s.Start.Format(models.DateLayout)
		i, ok := index[date]
		if !ok {
			i = len(out)
			index[date] = i
			out = append(out, DateGroup{Date: date})
		}
		out[i].Slots = append(out[i].Slots, s)
	}
	return out
}
