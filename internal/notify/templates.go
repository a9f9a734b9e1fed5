package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

type Email struct {
	Subject string
	Body    string
}

func FormatDateTimeRange(start, end time.Time) (string, string) {
	date := start.Format("Monday, Jan 2, 2006")
	timeRange := fmt.Sprintf("%s - %s %s", start.Format("3:04 PM"), end.Format("3:04 PM"), start.Format("MST"))
	return date, timeRange
}

// BuildEmail renders evt; it reports false for event types that send no email.
func BuildEmail(evt Event) (Email, bool) {
	facilityName := strings.TrimSpace(evt.FacilityName)
	if facilityName == "" {
		facilityName = "your facility"
	}

	loc := time.UTC
	if evt.Timezone != "" {
		if loaded, err := time.LoadLocation(evt.Timezone); err == nil {
			loc = loaded
		}
	}
	date, timeRange := "TBD", "TBD"
	b := evt.Booking
	start, errStart := models.LocalDateTime(b.Date, b.Start, loc)
	end, errEnd := models.LocalDateTime(b.Date, b.End, loc)
	if errStart == nil && errEnd == nil {
		date, timeRange = FormatDateTimeRange(start, end)
	}

	var subject, intro string
	var extra []string
	switch evt.Type {
	case BookingCreated:
		subject = "Booking Received"
		intro = "We received your court booking."
		switch b.Status {
		case models.StatusPending:
			extra = append(extra, "Status: awaiting payment")
		case models.StatusAwaitingApproval:
			extra = append(extra, "Status: awaiting approval by the facility")
		}
	case BookingConfirmed:
		subject = "Booking Confirmed"
		intro = "Your court booking is confirmed."
	case BookingCancelled:
		subject = "Booking Cancelled"
		intro = "Your court booking has been cancelled."
		if reason := strings.TrimSpace(evt.Reason); reason != "" {
			extra = append(extra, fmt.Sprintf("Reason: %s", reason))
		}
		if evt.RefundPercent != nil {
			extra = append(extra, fmt.Sprintf("Refund: %d%%", *evt.RefundPercent))
		}
		if b.RefundStatus == models.RefundFailed {
			extra = append(extra, "Your refund could not be processed automatically. Please contact support.")
		}
	case BookingReminder:
		subject = "Upcoming Booking Reminder"
		intro = "Reminder: your court booking is coming up."
	case BookingFeedback:
		subject = "How Was Your Game?"
		intro = "Thanks for playing. We would love to hear how it went."
	default:
		return Email{}, false
	}

	lines := []string{
		intro,
		"",
		fmt.Sprintf("Facility: %s", facilityName),
		fmt.Sprintf("Date: %s", date),
		fmt.Sprintf("Time: %s", timeRange),
	}
	lines = append(lines, extra...)

	return Email{
		Subject: fmt.Sprintf("%s - %s", subject, facilityName),
		Body:    strings.Join(lines, "\n"),
	}, true
}
