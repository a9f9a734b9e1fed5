// internal/scheduler/sweeps.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/notify"
	"github.com/codr1/courtbook/internal/store"
)

const (
	ReminderJobName = "booking_reminders"
	FeedbackJobName = "booking_feedback"

	sweepTimeout = 2 * time.Minute
)

// Deliverer sends an event synchronously so the sweep can count failures.
type Deliverer interface {
	Deliver(ctx context.Context, evt notify.Event) error
}

type SweepOptions struct {
	Events       Deliverer
	Metrics      *metrics.Metrics
	Clock        clock.Clock
	ReminderLead time.Duration
	// FeedbackDelay is how long after the end hour feedback goes out.
	FeedbackDelay time.Duration
	JitterBuffer  time.Duration
}

// Sweeper sends reminder and feedback notifications for bookings in
// hour-aligned windows. Each booking is stamped before it is sent, so
// overlapping or repeated runs never notify twice.
type Sweeper struct {
	store         *store.Store
	events        Deliverer
	metrics       *metrics.Metrics
	clock         clock.Clock
	reminderLead  time.Duration
	feedbackDelay time.Duration
	jitter        time.Duration
}

func NewSweeper(st *store.Store, opts SweepOptions) *Sweeper {
	if opts.ReminderLead <= 0 {
		opts.ReminderLead = config.DefaultReminderLeadHours * time.Hour
	}
	if opts.FeedbackDelay <= 0 {
		opts.FeedbackDelay = time.Hour
	}
	if opts.JitterBuffer < 0 {
		opts.JitterBuffer = 0
	}
	return &Sweeper{
		store:         st,
		events:        opts.Events,
		metrics:       opts.Metrics,
		clock:         clock.Or(opts.Clock),
		reminderLead:  opts.ReminderLead,
		feedbackDelay: opts.FeedbackDelay,
		jitter:        opts.JitterBuffer,
	}
}

// Window is a half-open [Start, End) interval in facility local time.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// dates lists the local dates a booking touching w could be filed under,
// including the day before Start for bookings ending at 24:00.
func (w Window) dates() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range []time.Time{w.Start.AddDate(0, 0, -1), w.Start, w.End.Add(-time.Nanosecond)} {
		d := t.Format(models.DateLayout)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// sweepHour is now plus the jitter buffer, floored to the hour in loc. A job
// firing a few minutes early still lands on the hour it was scheduled for.
func (s *Sweeper) sweepHour(loc *time.Location) time.Time {
	t := s.clock.Now().Add(s.jitter).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
}

func (s *Sweeper) ReminderWindow(loc *time.Location) Window {
	start := s.sweepHour(loc).Add(s.reminderLead)
	return Window{Start: start, End: start.Add(time.Hour)}
}

func (s *Sweeper) FeedbackWindow(loc *time.Location) Window {
	start := s.sweepHour(loc).Add(-s.feedbackDelay)
	return Window{Start: start, End: start.Add(time.Hour)}
}

type facilityWindow struct {
	facility models.Facility
	loc      *time.Location
	window   Window
}

func (s *Sweeper) windows(ctx context.Context, pick func(*time.Location) Window) (map[int64]facilityWindow, []string, error) {
	facilities, err := s.store.ListFacilities(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list facilities: %w", err)
	}
	windows := make(map[int64]facilityWindow, len(facilities))
	seen := map[string]bool{}
	var dates []string
	for _, f := range facilities {
		loc := f.Location()
		w := pick(loc)
		windows[f.ID] = facilityWindow{facility: f, loc: loc, window: w}
		for _, d := range w.dates() {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	return windows, dates, nil
}

// SendReminders notifies confirmed bookings starting in the reminder window.
// It returns how many reminders were delivered.
func (s *Sweeper) SendReminders(ctx context.Context) (int, error) {
	windows, dates, err := s.windows(ctx, s.ReminderWindow)
	if err != nil || len(dates) == 0 {
		return 0, err
	}
	bookings, err := s.store.ListUnsentBookings(ctx, store.ReminderMarker, dates, models.StatusConfirmed)
	if err != nil {
		return 0, err
	}

	var sent int
	var errs []error
	for _, b := range bookings {
		fw, ok := windows[b.FacilityID]
		if !ok {
			continue
		}
		startsAt, err := models.LocalDateTime(b.Date, b.Start, fw.loc)
		if err != nil || !fw.window.Contains(startsAt) {
			continue
		}
		ok, err = s.claimAndSend(ctx, b, fw.facility, store.ReminderMarker, notify.BookingReminder)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

// SendFeedback completes confirmed bookings that ended in the feedback window
// and asks their players for feedback.
func (s *Sweeper) SendFeedback(ctx context.Context) (int, error) {
	windows, dates, err := s.windows(ctx, s.FeedbackWindow)
	if err != nil || len(dates) == 0 {
		return 0, err
	}
	bookings, err := s.store.ListUnsentBookings(ctx, store.FeedbackMarker, dates, models.StatusConfirmed, models.StatusCompleted)
	if err != nil {
		return 0, err
	}

	var sent int
	var errs []error
	for _, b := range bookings {
		fw, ok := windows[b.FacilityID]
		if !ok {
			continue
		}
		endsAt, err := models.LocalDateTime(b.Date, b.End, fw.loc)
		if err != nil || !fw.window.Contains(endsAt) {
			continue
		}
		if b.Status == models.StatusConfirmed {
			changed, err := s.store.TransitionStatus(ctx, b.ID, models.StatusConfirmed, models.StatusCompleted)
			if err != nil {
				errs = append(errs, fmt.Errorf("complete booking %d: %w", b.ID, err))
				continue
			}
			if changed {
				s.metrics.Transition(string(models.StatusConfirmed), string(models.StatusCompleted))
				b.Status = models.StatusCompleted
			}
		}
		ok, err = s.claimAndSend(ctx, b, fw.facility, store.FeedbackMarker, notify.BookingFeedback)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

func (s *Sweeper) claimAndSend(ctx context.Context, b models.Booking, facility models.Facility, marker string, eventType notify.EventType) (bool, error) {
	claimed, err := s.store.StampSent(ctx, b.ID, marker)
	if err != nil || !claimed {
		return false, err
	}
	if s.events == nil {
		return true, nil
	}
	evt := notify.NewEvent(eventType, b, s.clock.Now())
	evt.FacilityName = facility.Name
	evt.Timezone = facility.Timezone
	if err := s.events.Deliver(ctx, evt); err != nil {
		return false, fmt.Errorf("deliver %s for booking %d: %w", eventType, b.ID, err)
	}
	return true, nil
}

// RegisterSweeps adds the reminder and feedback jobs. Singleton mode makes a
// slow run delay the next one instead of overlapping it.
func RegisterSweeps(svc *Service, sw *Sweeper, cfg config.SchedulerConfig) error {
	if sw == nil {
		return fmt.Errorf("sweeps require a sweeper")
	}
	jobs := []struct {
		name string
		cron string
		run  func(context.Context) (int, error)
	}{
		{ReminderJobName, cfg.ReminderCron, sw.SendReminders},
		{FeedbackJobName, cfg.FeedbackCron, sw.SendFeedback},
	}
	for _, job := range jobs {
		jobLogger := log.With().
			Str("component", job.name+"_job").
			Str("job_name", job.name).
			Str("cron", job.cron).
			Logger()
		if _, err := svc.AddJob(job.name, job.cron, sw.task(job.name, job.run, jobLogger), gocron.WithSingletonMode(gocron.LimitModeWait)); err != nil {
			return fmt.Errorf("add %s job: %w", job.name, err)
		}
		jobLogger.Info().Msg("Sweep job registered")
	}
	return nil
}

func (s *Sweeper) task(name string, run func(context.Context) (int, error), logger zerolog.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		ctx = logger.WithContext(ctx)

		sent, err := run(ctx)
		s.metrics.SweepRun(name, err)
		if err != nil {
			logger.Error().Err(err).Int("sent", sent).Msg("Sweep finished with errors")
			return
		}
		logger.Info().Int("sent", sent).Msg("Sweep finished")
	}
}
