package provider

import (
	"context"
	"sync"
	"time"

	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/models"
)

const DefaultConfigTTL = 5 * time.Minute

type ConfigStore interface {
	GetProviderConfig(ctx context.Context, id int64) (models.ProviderConfig, error)
	ListProviderConfigs(ctx context.Context, facilityID int64) ([]models.ProviderConfig, error)
}

type configEntry struct {
	config  models.ProviderConfig
	expires time.Time
}

type facilityEntry struct {
	ids     []int64
	expires time.Time
}

// ConfigCache is a read-through TTL cache of provider configs. Reads may be
// up to one TTL stale; admin edits call Invalidate.
type ConfigCache struct {
	store ConfigStore
	ttl   time.Duration
	clock clock.Clock

	mu         sync.Mutex
	configs    map[int64]configEntry
	facilities map[int64]facilityEntry
}

func NewConfigCache(store ConfigStore, ttl time.Duration, clk clock.Clock) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &ConfigCache{
		store:      store,
		ttl:        ttl,
		clock:      clock.Or(clk),
		configs:    map[int64]configEntry{},
		facilities: map[int64]facilityEntry{},
	}
}

func (c *ConfigCache) Get(ctx context.Context, id int64) (models.ProviderConfig, error) {
	now := c.clock.Now()

	c.mu.Lock()
	entry, ok := c.configs[id]
	c.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.config, nil
	}

	cfg, err := c.store.GetProviderConfig(ctx, id)
	if err != nil {
		return models.ProviderConfig{}, err
	}

	c.mu.Lock()
	c.configs[id] = configEntry{config: cfg, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return cfg, nil
}

// ForFacility returns the enabled configs of a facility.
func (c *ConfigCache) ForFacility(ctx context.Context, facilityID int64) ([]models.ProviderConfig, error) {
	now := c.clock.Now()

	c.mu.Lock()
	entry, ok := c.facilities[facilityID]
	if ok && now.Before(entry.expires) {
		configs := make([]models.ProviderConfig, 0, len(entry.ids))
		complete := true
		for _, id := range entry.ids {
			cfgEntry, found := c.configs[id]
			if !found || !now.Before(cfgEntry.expires) {
				complete = false
				break
			}
			configs = append(configs, cfgEntry.config)
		}
		if complete {
			c.mu.Unlock()
			return configs, nil
		}
	}
	c.mu.Unlock()

	configs, err := c.store.ListProviderConfigs(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	expires := now.Add(c.ttl)
	ids := make([]int64, 0, len(configs))
	c.mu.Lock()
	for _, cfg := range configs {
		ids = append(ids, cfg.ID)
		c.configs[cfg.ID] = configEntry{config: cfg, expires: expires}
	}
	c.facilities[facilityID] = facilityEntry{ids: ids, expires: expires}
	c.mu.Unlock()
	return configs, nil
}

// Invalidate drops one config and every facility listing, since the edit
// may have moved or disabled it.
func (c *ConfigCache) Invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.configs, id)
	c.facilities = map[int64]facilityEntry{}
}

func (c *ConfigCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = map[int64]configEntry{}
	c.facilities = map[int64]facilityEntry{}
}
