// internal/api/slots/handlers.go
package slots

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/provider"
	"github.com/codr1/courtbook/internal/store"
)

const (
	openSlotsQueryTimeout = 5 * time.Second
	// Providers have their own per-call timeouts; this bounds the whole fan-out.
	providerFetchTimeout = 30 * time.Second
	maxDays              = 14
	maxSlotsLimit        = 200
)

type Options struct {
	Clock      clock.Clock
	MaxOptions int
	MaxSlots   int
}

type Handler struct {
	store      *store.Store
	providers  *provider.Service
	clock      clock.Clock
	maxOptions int
	maxSlots   int
}

func NewHandler(st *store.Store, providers *provider.Service, opts Options) *Handler {
	return &Handler{
		store:      st,
		providers:  providers,
		clock:      clock.Or(opts.Clock),
		maxOptions: opts.MaxOptions,
		maxSlots:   opts.MaxSlots,
	}
}

type openSlotsResponse struct {
	CourtID int64              `json:"courtId"`
	Date    string             `json:"date"`
	Slots   []models.TimeRange `json:"slots"`
}

// GET /api/v1/courts/{id}/open-slots?date=
func (h *Handler) OpenSlots(w http.ResponseWriter, r *http.Request) {
	courtID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	date, err := apiutil.DateQuery(r, "date")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if date == "" {
		apiutil.WriteError(w, r, apiutil.BadRequest("date is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), openSlotsQueryTimeout)
	defer cancel()

	slots, err := h.store.OpenSlots(ctx, courtID, date)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if slots == nil {
		slots = []models.TimeRange{}
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, openSlotsResponse{CourtID: courtID, Date: date, Slots: slots})
}

type facilityAvailabilityResponse struct {
	FacilityID      int64                    `json:"facilityId"`
	Timezone        string                   `json:"timezone"`
	DisplayTimezone string                   `json:"displayTimezone,omitempty"`
	Dates           []availability.DateGroup `json:"dates"`
}

// GET /api/v1/facilities/{id}/availability?date=&days=&timezone=&limit=
//
// Provider failures degrade to fewer slots; only an unknown facility or a
// broken config store fails the request.
func (h *Handler) FacilityAvailability(w http.ResponseWriter, r *http.Request) {
	facilityID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	startDate, err := apiutil.DateQuery(r, "date")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	days, err := apiutil.IntQuery(r, "days", 1, 1, maxDays)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	limit, err := apiutil.IntQuery(r, "limit", h.maxSlots, 1, maxSlotsLimit)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), providerFetchTimeout)
	defer cancel()

	facility, err := h.store.GetFacility(ctx, facilityID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	// "Future" is always judged on the facility's clock. A caller zone is
	// validated and echoed back for display only.
	loc := facility.Location()
	timezone := loc.String()
	displayTimezone := strings.TrimSpace(r.URL.Query().Get("timezone"))
	if displayTimezone != "" {
		if _, err := time.LoadLocation(displayTimezone); err != nil {
			apiutil.WriteError(w, r, apiutil.BadRequest("unknown timezone %q", displayTimezone))
			return
		}
	}

	now := h.clock.Now()
	if startDate == "" {
		startDate = now.In(loc).Format(models.DateLayout)
	}
	dates, err := dateRange(startDate, days)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("%s", err.Error()))
		return
	}

	slots, err := h.providers.FacilitySlots(ctx, facilityID, dates, timezone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	grouped := availability.Aggregate(slots, availability.AggregateOptions{
		Timezone:   timezone,
		Now:        now,
		MaxOptions: h.maxOptions,
		MaxSlots:   limit,
	})
	log.Ctx(r.Context()).Debug().
		Int64("facility_id", facilityID).
		Int("raw_slots", len(slots)).
		Int("grouped_slots", len(grouped)).
		Msg("Facility availability aggregated")

	dateGroups := availability.GroupByDate(grouped)
	if dateGroups == nil {
		dateGroups = []availability.DateGroup{}
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, facilityAvailabilityResponse{
		FacilityID:      facilityID,
		Timezone:        timezone,
		DisplayTimezone: displayTimezone,
		Dates:           dateGroups,
	})
}

func dateRange(start string, days int) ([]string, error) {
	first, err := models.ParseDate(start)
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, days)
	for i := 0; i < days; i++ {
		dates = append(dates, first.AddDate(0, 0, i).Format(models.DateLayout))
	}
	return dates, nil
}
