package provider

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/models"
)

const TypeScheduleAPI = "schedule_api"

// scheduleAPIAdapter talks to booking platforms exposing a POST
// /availability endpoint with bearer auth. Its deep links take unix seconds.
//
// Settings: token, venue_id, duration_minutes, path (default "/availability").
type scheduleAPIAdapter struct {
	linker
	cfg       models.ProviderConfig
	requester *Requester
}

type scheduleAPIRequest struct {
	VenueID         string `json:"venueId"`
	Date            string `json:"date"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}

type scheduleAPIResponse struct {
	Slots []scheduleAPISlot `json:"slots"`
}

type scheduleAPISlot struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	ResourceID string `json:"resourceId"`
	ScheduleID string `json:"scheduleId"`
	CourtName  string `json:"courtName"`
	Available  int    `json:"available"`
	Price      *struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"price"`
}

func UnixSeconds(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func NewScheduleAPIAdapter(cfg models.ProviderConfig, requester *Requester) Adapter {
	return &scheduleAPIAdapter{
		linker:    linker{template: cfg.LinkTemplate, format: UnixSeconds},
		cfg:       cfg,
		requester: requester,
	}
}

func (a *scheduleAPIAdapter) Fetch(ctx context.Context, params FetchParams) []models.AvailabilitySlot {
	logger := log.Ctx(ctx).With().
		Int64("provider_id", a.cfg.ID).
		Str("provider_type", TypeScheduleAPI).
		Str("date", params.Date).
		Logger()

	duration, _ := strconv.Atoi(a.cfg.Setting("duration_minutes", "0"))
	header := http.Header{}
	if token := a.cfg.Setting("token", ""); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	var resp scheduleAPIResponse
	err := a.requester.DoJSON(ctx, TypeScheduleAPI, limiterKey(a.cfg), Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(a.cfg.BaseURL, "/") + a.cfg.Setting("path", "/availability"),
		Header: header,
		Body: scheduleAPIRequest{
			VenueID:         a.cfg.Setting("venue_id", ""),
			Date:            params.Date,
			DurationMinutes: duration,
			Timezone:        params.Timezone,
		},
		Timeout: callTimeout(a.cfg, params),
	}, &resp)
	if err != nil {
		logger.Error().Err(err).Msg("Provider availability request failed")
		return []models.AvailabilitySlot{}
	}

	slots := make([]models.AvailabilitySlot, 0, len(resp.Slots))
	for _, raw := range resp.Slots {
		start, ok := availability.ParseTime(raw.Start)
		if !ok {
			logger.Debug().Str("start", raw.Start).Msg("Skipping slot with unparseable start")
			continue
		}
		end, ok := availability.ParseTime(raw.End)
		if !ok || !end.After(start) {
			end = start.Add(time.Duration(max(duration, 60)) * time.Minute)
		}
		if raw.Available <= 0 {
			continue
		}
		slot := models.AvailabilitySlot{
			Start:      start,
			End:        end,
			Count:      raw.Available,
			ResourceID: raw.ResourceID,
			ScheduleID: raw.ScheduleID,
			Name:       raw.CourtName,
		}
		if raw.Price != nil {
			amount := raw.Price.Amount
			slot.Price = &amount
			slot.Currency = raw.Price.Currency
		}
		slots = append(slots, slot)
	}
	return withActionLinks(slots, a.BuildActionLink)
}

// callTimeout prefers the per-call override, then the config's "timeout" setting.
func callTimeout(cfg models.ProviderConfig, params FetchParams) time.Duration {
	if params.Timeout > 0 {
		return params.Timeout
	}
	if raw := cfg.Setting("timeout", ""); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return 0
}
