// internal/api/providers/handlers.go
package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/provider"
	"github.com/codr1/courtbook/internal/store"
)

const (
	providersQueryTimeout = 5 * time.Second
	providerPreviewTimeout = 30 * time.Second
)

type Handler struct {
	store    *store.Store
	registry *provider.Registry
	service  *provider.Service
}

func NewHandler(st *store.Store, registry *provider.Registry, service *provider.Service) *Handler {
	return &Handler{store: st, registry: registry, service: service}
}

type configBody struct {
	FacilityID   int64             `json:"facilityId"`
	ProviderType string            `json:"providerType"`
	BaseURL      string            `json:"baseUrl"`
	Settings     map[string]string `json:"settings"`
	LinkTemplate string            `json:"linkTemplate"`
	Enabled      *bool             `json:"enabled"`
}

func (h *Handler) decodeConfig(r *http.Request) (models.ProviderConfig, error) {
	var body configBody
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		return models.ProviderConfig{}, apiutil.BadRequest("invalid request body: %s", err.Error())
	}

	body.ProviderType = strings.TrimSpace(body.ProviderType)
	if !h.registry.IsRegistered(body.ProviderType) {
		return models.ProviderConfig{}, &provider.UnknownProviderError{Type: body.ProviderType}
	}
	parsed, err := url.Parse(strings.TrimSpace(body.BaseURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return models.ProviderConfig{}, apiutil.BadRequest("baseUrl must be an absolute http(s) URL")
	}

	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	return models.ProviderConfig{
		FacilityID:   body.FacilityID,
		ProviderType: body.ProviderType,
		BaseURL:      parsed.String(),
		Settings:     body.Settings,
		LinkTemplate: strings.TrimSpace(body.LinkTemplate),
		Enabled:      enabled,
	}, nil
}

// POST /api/v1/providers
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.decodeConfig(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if cfg.FacilityID <= 0 {
		apiutil.WriteError(w, r, apiutil.BadRequest("facilityId must be greater than 0"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), providersQueryTimeout)
	defer cancel()

	if _, err := h.store.GetFacility(ctx, cfg.FacilityID); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	created, err := h.store.CreateProviderConfig(ctx, cfg)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	h.service.Configs().Invalidate(created.ID)

	log.Ctx(r.Context()).Info().
		Int64("provider_id", created.ID).
		Int64("facility_id", created.FacilityID).
		Str("provider_type", created.ProviderType).
		Msg("Provider config created")
	_ = apiutil.WriteJSON(w, http.StatusCreated, created)
}

// GET /api/v1/providers/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), providersQueryTimeout)
	defer cancel()

	cfg, err := h.store.GetProviderConfig(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, cfg)
}

// PUT /api/v1/providers/{id}
//
// The facility of a config is fixed at creation; facilityId in the body is
// ignored.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	cfg, err := h.decodeConfig(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	cfg.ID = id

	ctx, cancel := context.WithTimeout(r.Context(), providersQueryTimeout)
	defer cancel()

	updated, err := h.store.UpdateProviderConfig(ctx, cfg)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	h.service.Configs().Invalidate(id)

	log.Ctx(r.Context()).Info().
		Int64("provider_id", id).
		Str("provider_type", updated.ProviderType).
		Bool("enabled", updated.Enabled).
		Msg("Provider config updated")
	_ = apiutil.WriteJSON(w, http.StatusOK, updated)
}

// GET /api/v1/providers/{id}/slots?date=&timezone=
//
// Fetches one provider directly so staff can check a config before relying
// on it. Outages show up as an empty list, as they do for players.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
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

	ctx, cancel := context.WithTimeout(r.Context(), providerPreviewTimeout)
	defer cancel()

	adapter, err := h.service.AdapterFor(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	slots := adapter.Fetch(ctx, provider.FetchParams{
		Date:     date,
		Timezone: strings.TrimSpace(r.URL.Query().Get("timezone")),
	})
	if slots == nil {
		slots = []models.AvailabilitySlot{}
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, map[string]any{"slots": slots})
}
