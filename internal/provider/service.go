package provider

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/courtbook/internal/models"
)

const defaultFetchConcurrency = 8

type FetchRequest struct {
	Config models.ProviderConfig
	Params FetchParams
}

// Service resolves provider configs and fans fetches out concurrently.
type Service struct {
	registry    *Registry
	configs     *ConfigCache
	concurrency int
}

func NewService(registry *Registry, configs *ConfigCache) *Service {
	return &Service{registry: registry, configs: configs, concurrency: defaultFetchConcurrency}
}

func (s *Service) Configs() *ConfigCache {
	return s.configs
}

// FetchMany runs every request concurrently, each under its own timeout.
// results[i] belongs to reqs[i]; unknown providers and failures yield nil.
func (s *Service) FetchMany(ctx context.Context, reqs []FetchRequest) [][]models.AvailabilitySlot {
	results := make([][]models.AvailabilitySlot, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		if !s.registry.IsRegistered(req.Config.ProviderType) {
			log.Ctx(ctx).Warn().
				Int64("provider_id", req.Config.ID).
				Str("provider_type", req.Config.ProviderType).
				Msg("Skipping provider with unregistered type")
			continue
		}
		i, req := i, req
		g.Go(func() error {
			adapter, err := s.registry.GetAdapter(req.Config)
			if err != nil {
				return nil
			}
			results[i] = adapter.Fetch(gctx, req.Params)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FacilitySlots fetches every enabled provider of a facility for each date
// and concatenates the results.
func (s *Service) FacilitySlots(ctx context.Context, facilityID int64, dates []string, timezone string) ([]models.AvailabilitySlot, error) {
	configs, err := s.configs.ForFacility(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	var reqs []FetchRequest
	for _, cfg := range configs {
		for _, date := range dates {
			reqs = append(reqs, FetchRequest{Config: cfg, Params: FetchParams{Date: date, Timezone: timezone}})
		}
	}

	var slots []models.AvailabilitySlot
	for _, r := range s.FetchMany(ctx, reqs) {
		slots = append(slots, r...)
	}
	return slots, nil
}

// AdapterFor loads a config through the cache and returns its adapter.
func (s *Service) AdapterFor(ctx context.Context, configID int64) (Adapter, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.GetAdapter(cfg)
	if err != nil {
		var unknown *UnknownProviderError
		if errors.As(err, &unknown) {
			log.Ctx(ctx).Warn().Int64("provider_id", cfg.ID).Str("provider_type", unknown.Type).Msg("Provider type not registered")
		}
		return nil, err
	}
	return adapter, nil
}
