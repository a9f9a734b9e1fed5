package provider

import (
	"net/url"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

const (
	PlaceholderResourceID = "{resourceId}"
	PlaceholderStartTime  = "{startTime}"
	PlaceholderEndTime    = "{endTime}"
	PlaceholderScheduleID = "{scheduleId}"
)

// TimeFormatter renders slot times into a link.
type TimeFormatter func(time.Time) string

// ISOTime is the default link time format. Wall-clock times are written
// without an offset.
func ISOTime(t time.Time) string {
	if models.IsCivil(t) {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format(time.RFC3339)
}

// ExpandLink substitutes the four slot placeholders into template. Values
// are query-escaped. It reports false when there is no template or the
// template needs a schedule id the slot lacks.
func ExpandLink(template string, slot models.AvailabilitySlot, format TimeFormatter) (string, bool) {
	if strings.TrimSpace(template) == "" {
		return "", false
	}
	if strings.Contains(template, PlaceholderScheduleID) && slot.ScheduleID == "" {
		return "", false
	}
	if format == nil {
		format = ISOTime
	}

	replacer := strings.NewReplacer(
		PlaceholderResourceID, url.QueryEscape(slot.ResourceID),
		PlaceholderStartTime, url.QueryEscape(format(slot.Start)),
		PlaceholderEndTime, url.QueryEscape(format(slot.End)),
		PlaceholderScheduleID, url.QueryEscape(slot.ScheduleID),
	)
	return replacer.Replace(template), true
}

// linker gives adapters the default BuildActionLink.
type linker struct {
	template string
	format   TimeFormatter
}

func (l linker) BuildActionLink(slot models.AvailabilitySlot) (string, bool) {
	if slot.ActionLink != "" {
		return slot.ActionLink, true
	}
	return ExpandLink(l.template, slot, l.format)
}

func withActionLinks(slots []models.AvailabilitySlot, build func(models.AvailabilitySlot) (string, bool)) []models.AvailabilitySlot {
	for i := range slots {
		if link, ok := build(slots[i]); ok {
			slots[i].ActionLink = link
		}
	}
	return slots
}
