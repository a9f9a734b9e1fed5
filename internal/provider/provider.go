// internal/provider/provider.go
package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

// FetchParams scopes one availability fetch. Timeout overrides the
// requester's default for this call only.
type FetchParams struct {
	Date     string
	Timezone string
	Timeout  time.Duration
}

// Adapter fetches availability from one external provider. Fetch never
// returns an error: outages and bad responses are logged and yield no slots.
type Adapter interface {
	Fetch(ctx context.Context, params FetchParams) []models.AvailabilitySlot
	BuildActionLink(slot models.AvailabilitySlot) (string, bool)
}

// Constructor builds an adapter bound to one provider config.
type Constructor func(cfg models.ProviderConfig, requester *Requester) Adapter

// Decorator wraps every adapter the registry builds.
type Decorator func(cfg models.ProviderConfig, next Adapter) Adapter

type Registry struct {
	requester *Requester

	mu           sync.RWMutex
	constructors map[string]Constructor
	decorators   []Decorator
}

func NewRegistry(requester *Requester) *Registry {
	return &Registry{
		requester:    requester,
		constructors: map[string]Constructor{},
	}
}

// NewDefaultRegistry registers the built-in adapters.
func NewDefaultRegistry(requester *Requester) *Registry {
	r := NewRegistry(requester)
	r.Register(TypeGenericJSON, NewGenericJSONAdapter)
	r.Register(TypeScheduleAPI, NewScheduleAPIAdapter)
	return r
}

func (r *Registry) Register(providerType string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[providerType] = c
}

func (r *Registry) Use(d Decorator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decorators = append(r.decorators, d)
}

func (r *Registry) IsRegistered(providerType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[providerType]
	return ok
}

// GetAdapter returns *UnknownProviderError for unregistered types.
func (r *Registry) GetAdapter(cfg models.ProviderConfig) (Adapter, error) {
	r.mu.RLock()
	c, ok := r.constructors[cfg.ProviderType]
	decorators := r.decorators
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownProviderError{Type: cfg.ProviderType}
	}

	adapter := c(cfg, r.requester)
	for _, d := range decorators {
		adapter = d(cfg, adapter)
	}
	return adapter, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
