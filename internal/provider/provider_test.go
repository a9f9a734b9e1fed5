package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/models"
)

func newTestRequester() *Requester {
	return NewRequester(RequesterOptions{Timeout: 2 * time.Second})
}

func TestGenericJSONAdapterParsesAnyShape(t *testing.T) {
	var gotQuery, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("day")
		gotKey = r.Header.Get("X-Club-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [
			{"startTime": "2030-05-01T10:00:00", "available": 2, "scheduleId": "s1", "courtId": "c1"}
		]}`))
	}))
	defer server.Close()

	adapter := NewGenericJSONAdapter(models.ProviderConfig{
		ID:           1,
		ProviderType: TypeGenericJSON,
		BaseURL:      server.URL,
		Settings:     map[string]string{"date_param": "day", "api_key": "secret", "api_key_header": "X-Club-Key"},
		LinkTemplate: "https://club.example/book?court={resourceId}&slot={scheduleId}&at={startTime}",
	}, newTestRequester())

	slots := adapter.Fetch(context.Background(), FetchParams{Date: "2030-05-01"})
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if gotQuery != "2030-05-01" || gotKey != "secret" {
		t.Fatalf("request shaping: query=%q key=%q", gotQuery, gotKey)
	}
	want := "https://club.example/book?court=c1&slot=s1&at=2030-05-01T10%3A00%3A00"
	if slots[0].ActionLink != want {
		t.Fatalf("action link = %q, want %q", slots[0].ActionLink, want)
	}
}

func TestAdaptersDegradeToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}},
		{"unrecognised payload", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status": "ok"}`))
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			for _, providerType := range []string{TypeGenericJSON, TypeScheduleAPI} {
				adapter, err := NewDefaultRegistry(newTestRequester()).GetAdapter(models.ProviderConfig{
					ID:           7,
					ProviderType: providerType,
					BaseURL:      server.URL,
				})
				if err != nil {
					t.Fatalf("get adapter: %v", err)
				}
				slots := adapter.Fetch(context.Background(), FetchParams{Date: "2030-05-01", Timeout: 50 * time.Millisecond})
				if slots == nil || len(slots) != 0 {
					t.Fatalf("%s: expected empty non-nil slots, got %v", providerType, slots)
				}
			}
		})
	}
}

func TestRequesterClassifiesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			<-r.Context().Done()
			return
		}
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer server.Close()

	r := newTestRequester()
	err := r.DoJSON(context.Background(), "test", "k", Request{URL: server.URL + "/status"}, nil)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusTeapot {
		t.Fatalf("expected HTTPStatusError 418, got %v", err)
	}

	err = r.DoJSON(context.Background(), "test", "k", Request{URL: server.URL + "/slow", Timeout: 30 * time.Millisecond}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestScheduleAPIAdapter(t *testing.T) {
	var gotAuth string
	var gotBody scheduleAPIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/availability" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"slots": [
			{"start": "2030-05-01T09:00:00", "end": "2030-05-01T10:00:00", "resourceId": "r9", "scheduleId": "sch-1", "available": 1, "price": {"amount": 30, "currency": "USD"}},
			{"start": "garbage", "available": 1},
			{"start": "2030-05-01T11:00:00", "available": 0}
		]}`))
	}))
	defer server.Close()

	adapter := NewScheduleAPIAdapter(models.ProviderConfig{
		ID:           3,
		ProviderType: TypeScheduleAPI,
		BaseURL:      server.URL + "/",
		Settings:     map[string]string{"token": "tok", "venue_id": "v-1"},
		LinkTemplate: "https://platform.example/s/{scheduleId}?from={startTime}&to={endTime}",
	}, newTestRequester())

	slots := adapter.Fetch(context.Background(), FetchParams{Date: "2030-05-01"})
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if gotAuth != "Bearer tok" || gotBody.VenueID != "v-1" || gotBody.Date != "2030-05-01" {
		t.Fatalf("request shaping: auth=%q body=%+v", gotAuth, gotBody)
	}
	start := time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)
	if !strings.Contains(slots[0].ActionLink, UnixSeconds(start)) {
		t.Fatalf("expected unix seconds in link, got %q", slots[0].ActionLink)
	}
	if slots[0].Price == nil || *slots[0].Price != 30 || slots[0].Currency != "USD" {
		t.Fatalf("price not mapped: %+v", slots[0])
	}
}

func TestExpandLink(t *testing.T) {
	slot := models.AvailabilitySlot{
		Start:      time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC),
		ResourceID: "court 1",
	}

	if _, ok := ExpandLink("", slot, nil); ok {
		t.Fatal("empty template should not build a link")
	}
	if _, ok := ExpandLink("https://x/{scheduleId}", slot, nil); ok {
		t.Fatal("missing schedule id should not build a link")
	}
	link, ok := ExpandLink("https://x/?c={resourceId}&e={endTime}", slot, nil)
	if !ok || link != "https://x/?c=court+1&e=2030-05-01T10%3A00%3A00Z" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewDefaultRegistry(newTestRequester())

	if !r.IsRegistered(TypeGenericJSON) || r.IsRegistered("carrier_pigeon") {
		t.Fatal("IsRegistered mismatch")
	}
	_, err := r.GetAdapter(models.ProviderConfig{ProviderType: "carrier_pigeon"})
	var unknown *UnknownProviderError
	if !errors.As(err, &unknown) || unknown.Type != "carrier_pigeon" {
		t.Fatalf("expected UnknownProviderError, got %v", err)
	}
}

type countingStore struct {
	mu      sync.Mutex
	gets    int
	lists   int
	configs map[int64]models.ProviderConfig
}

func (s *countingStore) GetProviderConfig(_ context.Context, id int64) (models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	cfg, ok := s.configs[id]
	if !ok {
		return models.ProviderConfig{}, errors.New("not found")
	}
	return cfg, nil
}

func (s *countingStore) ListProviderConfigs(_ context.Context, facilityID int64) ([]models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []models.ProviderConfig
	for _, cfg := range s.configs {
		if cfg.FacilityID == facilityID {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func TestConfigCacheTTLAndInvalidate(t *testing.T) {
	store := &countingStore{configs: map[int64]models.ProviderConfig{
		1: {ID: 1, FacilityID: 10, ProviderType: TypeGenericJSON},
	}}
	clk := clock.NewMock(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := NewConfigCache(store, 5*time.Minute, clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := cache.Get(ctx, 1); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if store.gets != 1 {
		t.Fatalf("expected 1 store read, got %d", store.gets)
	}

	clk.Advance(4 * time.Minute)
	_, _ = cache.Get(ctx, 1)
	if store.gets != 1 {
		t.Fatalf("entry should still be fresh, store reads = %d", store.gets)
	}

	clk.Advance(2 * time.Minute)
	_, _ = cache.Get(ctx, 1)
	if store.gets != 2 {
		t.Fatalf("expired entry should reload, store reads = %d", store.gets)
	}

	cache.Invalidate(1)
	_, _ = cache.Get(ctx, 1)
	if store.gets != 3 {
		t.Fatalf("invalidated entry should reload, store reads = %d", store.gets)
	}

	if _, err := cache.ForFacility(ctx, 10); err != nil {
		t.Fatalf("for facility: %v", err)
	}
	_, _ = cache.ForFacility(ctx, 10)
	if store.lists != 1 {
		t.Fatalf("expected 1 list, got %d", store.lists)
	}
	cache.InvalidateAll()
	_, _ = cache.ForFacility(ctx, 10)
	if store.lists != 2 {
		t.Fatalf("expected relist after InvalidateAll, got %d", store.lists)
	}
}

func TestFetchManyIsolatesSlowProviders(t *testing.T) {
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["2030-05-01T09:00:00"]`))
	}))
	defer fast.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()

	registry := NewDefaultRegistry(newTestRequester())
	svc := NewService(registry, NewConfigCache(&countingStore{}, 0, nil))

	results := svc.FetchMany(context.Background(), []FetchRequest{
		{Config: models.ProviderConfig{ID: 1, ProviderType: TypeGenericJSON, BaseURL: slow.URL}, Params: FetchParams{Timeout: 100 * time.Millisecond}},
		{Config: models.ProviderConfig{ID: 2, ProviderType: TypeGenericJSON, BaseURL: fast.URL}},
		{Config: models.ProviderConfig{ID: 3, ProviderType: "unknown", BaseURL: fast.URL}},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 result slots, got %d", len(results))
	}
	if len(results[0]) != 0 {
		t.Fatalf("slow provider should yield nothing, got %d", len(results[0]))
	}
	if len(results[1]) != 1 {
		t.Fatalf("fast provider should yield 1 slot, got %d", len(results[1]))
	}
	if results[2] != nil {
		t.Fatalf("unknown provider should be skipped")
	}
}

// fakeRedis implements the two commands the slot cache uses.
type fakeRedis struct {
	redis.Cmdable
	mu   sync.Mutex
	data map[string]string
	sets int
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

type stubAdapter struct {
	calls int
	slots []models.AvailabilitySlot
}

func (s *stubAdapter) Fetch(context.Context, FetchParams) []models.AvailabilitySlot {
	s.calls++
	return s.slots
}

func (s *stubAdapter) BuildActionLink(models.AvailabilitySlot) (string, bool) { return "", false }

func TestSlotCacheServesRepeatFetches(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{}}
	cache := NewSlotCache(rdb, time.Minute)
	stub := &stubAdapter{slots: []models.AvailabilitySlot{{
		Start: time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC),
		Count: 2,
	}}}
	adapter := cache.Decorator()(models.ProviderConfig{ID: 4}, stub)

	first := adapter.Fetch(context.Background(), FetchParams{Date: "2030-05-01"})
	second := adapter.Fetch(context.Background(), FetchParams{Date: "2030-05-01"})

	if stub.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", stub.calls)
	}
	if len(second) != 1 || second[0].Count != first[0].Count || !second[0].Start.Equal(first[0].Start) {
		t.Fatalf("cached slots differ: %+v vs %+v", second, first)
	}

	stub.slots = []models.AvailabilitySlot{{
		Start: models.AsCivil(time.Date(2030, 5, 3, 9, 0, 0, 0, time.UTC)),
		End:   models.AsCivil(time.Date(2030, 5, 3, 10, 0, 0, 0, time.UTC)),
		Count: 1,
	}}
	adapter.Fetch(context.Background(), FetchParams{Date: "2030-05-03"})
	civil := adapter.Fetch(context.Background(), FetchParams{Date: "2030-05-03"})
	if stub.calls != 2 || len(civil) != 1 || !models.IsCivil(civil[0].Start) || !models.IsCivil(civil[0].End) {
		t.Fatalf("wall-clock marker lost through the cache: calls=%d slots=%+v", stub.calls, civil)
	}
	if second[0].Start.Location() != time.UTC {
		t.Fatalf("instant slot should come back as UTC, got %v", second[0].Start.Location())
	}

	stub.slots = nil
	adapter.Fetch(context.Background(), FetchParams{Date: "2030-05-02"})
	if rdb.sets != 2 {
		t.Fatalf("empty results must not be cached, sets = %d", rdb.sets)
	}
}
