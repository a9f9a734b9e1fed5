package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/models"
)

const TypeGenericJSON = "generic_json"

// genericJSONAdapter GETs the config's base URL and hands whatever JSON
// comes back to the heuristic parser.
//
// Settings: date_param (default "date"), timezone_param, api_key with
// api_key_header (default "X-API-Key"), and any "header.<Name>" entries.
type genericJSONAdapter struct {
	linker
	cfg       models.ProviderConfig
	requester *Requester
}

func NewGenericJSONAdapter(cfg models.ProviderConfig, requester *Requester) Adapter {
	return &genericJSONAdapter{
		linker:    linker{template: cfg.LinkTemplate, format: ISOTime},
		cfg:       cfg,
		requester: requester,
	}
}

func (a *genericJSONAdapter) Fetch(ctx context.Context, params FetchParams) []models.AvailabilitySlot {
	logger := log.Ctx(ctx).With().
		Int64("provider_id", a.cfg.ID).
		Str("provider_type", TypeGenericJSON).
		Str("date", params.Date).
		Logger()

	endpoint, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid provider base URL")
		return []models.AvailabilitySlot{}
	}
	query := endpoint.Query()
	if params.Date != "" {
		query.Set(a.cfg.Setting("date_param", "date"), params.Date)
	}
	if tzParam := a.cfg.Setting("timezone_param", ""); tzParam != "" && params.Timezone != "" {
		query.Set(tzParam, params.Timezone)
	}
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	for key, value := range a.cfg.Settings {
		if name, ok := strings.CutPrefix(key, "header."); ok {
			header.Set(name, value)
		}
	}
	if apiKey := a.cfg.Setting("api_key", ""); apiKey != "" {
		header.Set(a.cfg.Setting("api_key_header", "X-API-Key"), apiKey)
	}

	var payload any
	err = a.requester.DoJSON(ctx, TypeGenericJSON, limiterKey(a.cfg), Request{
		Method:  http.MethodGet,
		URL:     endpoint.String(),
		Header:  header,
		Timeout: callTimeout(a.cfg, params),
	}, &payload)
	if err != nil {
		logger.Error().Err(err).Msg("Provider availability request failed")
		return []models.AvailabilitySlot{}
	}

	result := availability.Parse(payload)
	if !result.Success {
		logger.Warn().Str("reason", result.Error).Msg("Provider returned an unrecognised availability payload")
		return []models.AvailabilitySlot{}
	}
	return withActionLinks(result.Slots, a.BuildActionLink)
}

func limiterKey(cfg models.ProviderConfig) string {
	return strconv.FormatInt(cfg.ID, 10)
}
