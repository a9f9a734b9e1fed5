package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/models"
)

const slotCachePrefix = "courtbook:slots"

// SlotCache shares fetched slot lists between instances through Redis.
// Redis failures fall through to the provider.
type SlotCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewSlotCache(client redis.Cmdable, ttl time.Duration) *SlotCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SlotCache{client: client, ttl: ttl}
}

// Decorator plugs the cache into a Registry.
func (c *SlotCache) Decorator() Decorator {
	return func(cfg models.ProviderConfig, next Adapter) Adapter {
		return &cachedAdapter{cache: c, cfg: cfg, next: next}
	}
}

// key includes the config's update time so edits never serve old slots.
func (c *SlotCache) key(cfg models.ProviderConfig, params FetchParams) string {
	return fmt.Sprintf("%s:%d:%d:%s:%s", slotCachePrefix, cfg.ID, cfg.UpdatedAt.Unix(), params.Date, params.Timezone)
}

// cachedSlot keeps the wall-clock marker, which JSON times do not carry.
type cachedSlot struct {
	models.AvailabilitySlot
	Civil bool `json:"civil,omitempty"`
}

func encodeSlots(slots []models.AvailabilitySlot) ([]byte, error) {
	entries := make([]cachedSlot, len(slots))
	for i, s := range slots {
		entries[i] = cachedSlot{AvailabilitySlot: s, Civil: models.IsCivil(s.Start)}
	}
	return json.Marshal(entries)
}

func decodeSlots(data []byte) ([]models.AvailabilitySlot, error) {
	var entries []cachedSlot
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	slots := make([]models.AvailabilitySlot, len(entries))
	for i, e := range entries {
		s := e.AvailabilitySlot
		if e.Civil {
			s.Start, s.End = models.AsCivil(s.Start), models.AsCivil(s.End)
		}
		slots[i] = s
	}
	return slots, nil
}

type cachedAdapter struct {
	cache *SlotCache
	cfg   models.ProviderConfig
	next  Adapter
}

func (a *cachedAdapter) Fetch(ctx context.Context, params FetchParams) []models.AvailabilitySlot {
	logger := log.Ctx(ctx).With().Int64("provider_id", a.cfg.ID).Str("date", params.Date).Logger()
	key := a.cache.key(a.cfg, params)

	data, err := a.cache.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		slots, err := decodeSlots(data)
		if err == nil {
			return slots
		}
		logger.Warn().Err(err).Msg("Discarding undecodable cached slots")
	case !errors.Is(err, redis.Nil):
		logger.Warn().Err(err).Msg("Slot cache read failed")
	}

	slots := a.next.Fetch(ctx, params)
	// Empty results are usually outages; caching them would hide recovery.
	if len(slots) == 0 {
		return slots
	}
	payload, err := encodeSlots(slots)
	if err != nil {
		return slots
	}
	if err := a.cache.client.Set(ctx, key, payload, a.cache.ttl).Err(); err != nil {
		logger.Warn().Err(err).Msg("Slot cache write failed")
	}
	return slots
}

func (a *cachedAdapter) BuildActionLink(slot models.AvailabilitySlot) (string, bool) {
	return a.next.BuildActionLink(slot)
}
