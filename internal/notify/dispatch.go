package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
)

const defaultDeliveryTimeout = 5 * time.Second

// Directory resolves who and where an event is about.
type Directory interface {
	GetPlayer(ctx context.Context, id int64) (models.Player, error)
	GetFacility(ctx context.Context, id int64) (models.Facility, error)
}

type channel struct {
	name     string
	notifier Notifier
}

// Dispatcher fans events out to every channel. Dispatch is fire-and-forget;
// Deliver is the synchronous form used by the sweeps.
type Dispatcher struct {
	directory Directory
	channels  []channel
	timeout   time.Duration
	metrics   *metrics.Metrics

	wg sync.WaitGroup
}

func NewDispatcher(directory Directory, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{directory: directory, timeout: defaultDeliveryTimeout, metrics: m}
}

// Add registers a channel; nil notifiers are ignored.
func (d *Dispatcher) Add(name string, n Notifier) *Dispatcher {
	if n != nil {
		d.channels = append(d.channels, channel{name: name, notifier: n})
	}
	return d
}

// Dispatch delivers evt in the background. Failures are logged and never
// reach the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) {
	if d == nil || len(d.channels) == 0 {
		return
	}
	logger := log.Ctx(ctx).With().Str("event", string(evt.Type)).Int64("booking_id", evt.Booking.ID).Logger()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("Notification delivery panicked")
			}
		}()

		sendCtx, cancel := newDeliveryContext(ctx, d.timeout)
		defer cancel()
		if err := d.Deliver(sendCtx, evt); err != nil {
			logger.Error().Err(err).Msg("Failed to deliver notification")
		}
	}()
}

// Deliver enriches evt and sends it on every channel, joining their errors.
func (d *Dispatcher) Deliver(ctx context.Context, evt Event) error {
	if d == nil {
		return nil
	}
	evt = d.enrich(ctx, evt)

	var errs []error
	for _, ch := range d.channels {
		err := ch.notifier.Notify(ctx, evt)
		d.metrics.Notification(ch.name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until background deliveries finish.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

func (d *Dispatcher) enrich(ctx context.Context, evt Event) Event {
	if d.directory == nil {
		return evt
	}
	logger := log.Ctx(ctx)
	if evt.Recipient == "" && evt.Booking.PlayerID != nil {
		player, err := d.directory.GetPlayer(ctx, *evt.Booking.PlayerID)
		if err != nil {
			logger.Warn().Err(err).Int64("player_id", *evt.Booking.PlayerID).Msg("Failed to load player for notification")
		} else {
			evt.Recipient = player.Email
		}
	}
	if evt.FacilityName == "" && evt.Booking.FacilityID != 0 {
		facility, err := d.directory.GetFacility(ctx, evt.Booking.FacilityID)
		if err != nil {
			logger.Warn().Err(err).Int64("facility_id", evt.Booking.FacilityID).Msg("Failed to load facility for notification")
		} else {
			evt.FacilityName = facility.Name
			evt.Timezone = facility.Timezone
		}
	}
	return evt
}

func newDeliveryContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	// Detach cancellation so handler-scoped contexts don't abort async sends.
	parent = context.WithoutCancel(parent)
	return context.WithTimeout(parent, timeout)
}
