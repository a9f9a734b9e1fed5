package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/provider"
	"github.com/codr1/courtbook/internal/ratelimit"
	"github.com/codr1/courtbook/internal/refund"
	"github.com/codr1/courtbook/internal/schedule"
	"github.com/codr1/courtbook/internal/store"
	"github.com/codr1/courtbook/internal/testutil"
)

const (
	testWebhookSecret = "whsec_test"
	bookingDate       = "2030-06-04"
)

var testNow = time.Date(2030, 6, 3, 6, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *store.Store
	fx      testutil.Fixture
	gateway *testutil.FakeGateway
	events  *testutil.RecordingNotifier
}

func newTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()
	clk := clock.NewMock(testNow)
	st := testutil.NewTestStore(t, clk)
	fx := testutil.Seed(t, st)
	gateway := testutil.NewFakeGateway()
	events := &testutil.RecordingNotifier{}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	requester := provider.NewRequester(provider.RequesterOptions{Timeout: 2 * time.Second, Metrics: m})
	registry := provider.NewDefaultRegistry(requester)
	providers := provider.NewService(registry, provider.NewConfigCache(st, time.Hour, clk))

	deps := Deps{
		Store:               st,
		Bookings:            booking.NewService(st, booking.Options{Gateway: gateway, Events: events, Metrics: m, Clock: clk}),
		Refunds:             refund.NewService(st, refund.Options{Gateway: gateway, Events: events, Metrics: m, Clock: clk}),
		Schedule:            schedule.NewService(st),
		Registry:            registry,
		Providers:           providers,
		Clock:               clk,
		Metrics:             m,
		Gatherer:            reg,
		StripeWebhookSecret: testWebhookSecret,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	handler := NewRouter(deps)
	return &testServer{t: t, handler: handler, store: st, fx: fx, gateway: gateway, events: events}
}

type caller struct {
	id    int64
	staff bool
}

var anonymous = caller{}

func (s *testServer) player() caller { return caller{id: s.fx.Player.ID} }
func (s *testServer) staff() caller  { return caller{id: 9000, staff: true} }

func (s *testServer) do(as caller, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if as.id != 0 {
		req.Header.Set(userIDHeader, strconv.FormatInt(as.id, 10))
	}
	if as.staff {
		req.Header.Set(userRoleHeader, "staff")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) createBooking(as caller, start, end string, skipPayment bool) booking.CreateResult {
	s.t.Helper()
	rec := s.do(as, http.MethodPost, "/api/v1/bookings", map[string]any{
		"courtId":     s.fx.Court.ID,
		"playerId":    s.fx.Player.ID,
		"date":        bookingDate,
		"startTime":   start,
		"endTime":     end,
		"skipPayment": skipPayment,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[booking.CreateResult](s.t, rec)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))

	rec = s.do(anonymous, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = s.do(anonymous, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `courtbook_http_requests_total{code="200",method="GET",route="/health"}`)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(anonymous, http.MethodGet, "/api/v1/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestPlayerBookingLifecycle(t *testing.T) {
	s := newTestServer(t)

	created := s.createBooking(s.player(), "10:00", "11:00", false)
	assert.Equal(t, models.StatusPending, created.Booking.Status)
	assert.Equal(t, int64(2000), created.Booking.PriceMinor)
	assert.NotEmpty(t, created.ClientSecret)
	path := fmt.Sprintf("/api/v1/bookings/%d", created.Booking.ID)

	rec := s.do(s.player(), http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.Booking.ID, decode[models.Booking](t, rec).ID)

	rec = s.do(caller{id: s.fx.Player.ID + 100}, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other players must not see the booking")

	rec = s.do(s.player(), http.MethodGet, "/api/v1/bookings?status=pending,confirmed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Bookings []models.Booking `json:"bookings"`
	}](t, rec)
	require.Len(t, list.Bookings, 1)

	rec = s.do(s.player(), http.MethodPost, path+"/cancel", map[string]any{"reason": "rained out"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	outcome := decode[refund.Outcome](t, rec)
	assert.Equal(t, models.StatusCancelled, outcome.Booking.Status)
	assert.Equal(t, models.RefundNotRequired, outcome.Status)
	assert.Equal(t, []string{created.Booking.PaymentRef}, s.gateway.Cancelled())

	rec = s.do(s.player(), http.MethodPost, path+"/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "cancelled bookings cannot be cancelled again")
}

func TestCreateBookingRejections(t *testing.T) {
	s := newTestServer(t)
	valid := map[string]any{
		"courtId": s.fx.Court.ID, "date": bookingDate, "startTime": "10:00", "endTime": "11:00",
	}

	tests := []struct {
		name string
		as   caller
		body any
		want int
	}{
		{"anonymous", anonymous, valid, http.StatusUnauthorized},
		{"malformed json", s.player(), `{"courtId":`, http.StatusBadRequest},
		{"unknown field", s.player(), `{"courtId": 1, "bogus": true}`, http.StatusBadRequest},
		{"skip payment as player", s.player(), map[string]any{
			"courtId": s.fx.Court.ID, "date": bookingDate, "startTime": "10:00", "endTime": "11:00", "skipPayment": true,
		}, http.StatusForbidden},
		{"booking for someone else", s.player(), map[string]any{
			"courtId": s.fx.Court.ID, "playerId": s.fx.Player.ID + 1, "date": bookingDate, "startTime": "10:00", "endTime": "11:00",
		}, http.StatusForbidden},
		{"off-grid slot", s.player(), map[string]any{
			"courtId": s.fx.Court.ID, "date": bookingDate, "startTime": "10:30", "endTime": "11:30",
		}, http.StatusUnprocessableEntity},
		{"unknown court", s.player(), map[string]any{
			"courtId": 999, "date": bookingDate, "startTime": "10:00", "endTime": "11:00",
		}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.as, http.MethodPost, "/api/v1/bookings", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[map[string]any](t, rec)["error"])
		})
	}

	s.createBooking(s.player(), "10:00", "11:00", false)
	rec := s.do(s.player(), http.MethodPost, "/api/v1/bookings", valid)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "a held slot is no longer offered")
}

func TestStaffTransitions(t *testing.T) {
	s := newTestServer(t)
	created := s.createBooking(s.staff(), "12:00", "13:00", true)
	require.Equal(t, models.StatusConfirmed, created.Booking.Status)
	path := fmt.Sprintf("/api/v1/bookings/%d/transition", created.Booking.ID)

	rec := s.do(s.player(), http.MethodPost, path, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(anonymous, http.MethodPost, path, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(s.staff(), http.MethodPost, path, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusCompleted, decode[models.Booking](t, rec).Status)

	rec = s.do(s.staff(), http.MethodPost, path, map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "from completed to confirmed")

	rec = s.do(s.staff(), http.MethodPost, "/api/v1/bookings/9999/transition", map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBlockReportsConflicts(t *testing.T) {
	s := newTestServer(t)
	created := s.createBooking(s.staff(), "14:00", "15:00", true)

	body := map[string]any{
		"facilityId": s.fx.Facility.ID,
		"courtId":    s.fx.Court.ID,
		"date":       bookingDate,
		"startTime":  "13:00",
		"endTime":    "16:00",
		"blockType":  "maintenance",
	}
	rec := s.do(s.player(), http.MethodPost, "/api/v1/blocks", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(s.staff(), http.MethodPost, "/api/v1/blocks", body)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	conflict := decode[struct {
		Error     string             `json:"error"`
		Conflicts schedule.Conflicts `json:"conflicts"`
	}](t, rec)
	require.Len(t, conflict.Conflicts.Bookings, 1)
	assert.Equal(t, created.Booking.ID, conflict.Conflicts.Bookings[0].ID)
	assert.Empty(t, conflict.Conflicts.Blocks)

	rec = s.do(s.staff(), http.MethodGet, fmt.Sprintf("/api/v1/facilities/%d/blocks?date=%s", s.fx.Facility.ID, bookingDate), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"blocks": []}`, rec.Body.String())

	rec = s.do(s.staff(), http.MethodPost, "/api/v1/blocks?force=true", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	forced := decode[struct {
		Block      models.AvailabilityBlock `json:"block"`
		Overridden *schedule.Conflicts      `json:"overridden"`
	}](t, rec)
	require.NotNil(t, forced.Overridden)
	assert.Len(t, forced.Overridden.Bookings, 1)
	assert.Equal(t, int64(9000), *forced.Block.CreatedBy)

	rec = s.do(s.staff(), http.MethodDelete, fmt.Sprintf("/api/v1/blocks/%d", forced.Block.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(s.staff(), http.MethodDelete, fmt.Sprintf("/api/v1/blocks/%d", forced.Block.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenSlots(t *testing.T) {
	s := newTestServer(t)
	s.createBooking(s.player(), "08:00", "09:00", false)

	rec := s.do(anonymous, http.MethodGet, fmt.Sprintf("/api/v1/courts/%d/open-slots?date=%s", s.fx.Court.ID, bookingDate), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[struct {
		Slots []models.TimeRange `json:"slots"`
	}](t, rec)
	require.Len(t, resp.Slots, 13)
	assert.Equal(t, models.TimeRange{Start: 9 * 60, End: 10 * 60}, resp.Slots[0])

	rec = s.do(anonymous, http.MethodGet, fmt.Sprintf("/api/v1/courts/%d/open-slots", s.fx.Court.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(anonymous, http.MethodGet, fmt.Sprintf("/api/v1/courts/%d/open-slots?date=06/04/2030", s.fx.Court.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitPerCaller(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{RequestsPerSecond: 1, Burst: 2, Clock: clock.NewMock(testNow)})
	t.Cleanup(limiter.Close)
	s := newTestServer(t, func(d *Deps) { d.RateLimiter = limiter })

	for i := 0; i < 2; i++ {
		rec := s.do(s.player(), http.MethodGet, "/api/v1/bookings", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := s.do(s.player(), http.MethodGet, "/api/v1/bookings", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "too many requests", decode[map[string]any](t, rec)["error"])

	// Other callers have their own buckets.
	rec = s.do(s.staff(), http.MethodGet, "/api/v1/bookings", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	openSlots := fmt.Sprintf("/api/v1/courts/%d/open-slots?date=%s", s.fx.Court.ID, bookingDate)
	rec = s.do(anonymous, http.MethodGet, openSlots, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Staff-only routes are not throttled.
	for i := 0; i < 3; i++ {
		rec = s.do(s.player(), http.MethodGet, fmt.Sprintf("/api/v1/facilities/%d/blocks?date=%s", s.fx.Facility.ID, bookingDate), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}
}

func TestFacilityAvailabilityFollowsProviderConfig(t *testing.T) {
	s := newTestServer(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		date := r.URL.Query().Get("date")
		_, _ = fmt.Fprintf(w, `{"slots": [
			{"startTime": "%[1]sT10:00:00", "endTime": "%[1]sT11:00:00", "courtId": "c1", "scheduleId": "s1"},
			{"startTime": "%[1]sT10:00:00", "endTime": "%[1]sT11:00:00", "courtId": "c2", "scheduleId": "s2"},
			{"startTime": "%[1]sT12:00:00", "endTime": "%[1]sT13:00:00", "courtId": "c1", "scheduleId": "s3"}
		]}`, date)
	}))
	defer upstream.Close()

	config := map[string]any{
		"facilityId":   s.fx.Facility.ID,
		"providerType": provider.TypeGenericJSON,
		"baseUrl":      upstream.URL,
	}
	rec := s.do(s.player(), http.MethodPost, "/api/v1/providers", config)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(s.staff(), http.MethodPost, "/api/v1/providers", map[string]any{
		"facilityId": s.fx.Facility.ID, "providerType": "carrier_pigeon", "baseUrl": upstream.URL,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(s.staff(), http.MethodPost, "/api/v1/providers", config)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.ProviderConfig](t, rec)
	assert.True(t, created.Enabled)

	availabilityPath := fmt.Sprintf("/api/v1/facilities/%d/availability?date=%s", s.fx.Facility.ID, bookingDate)
	rec = s.do(anonymous, http.MethodGet, availabilityPath, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[struct {
		Timezone string                   `json:"timezone"`
		Dates    []availability.DateGroup `json:"dates"`
	}](t, rec)
	assert.Equal(t, "UTC", resp.Timezone)
	require.Len(t, resp.Dates, 1)
	assert.Equal(t, bookingDate, resp.Dates[0].Date)
	require.Len(t, resp.Dates[0].Slots, 2)
	assert.Equal(t, 2, resp.Dates[0].Slots[0].CourtCount)
	assert.Equal(t, 1, resp.Dates[0].Slots[1].CourtCount)

	// A caller zone far east of the facility must not hide slots that are
	// still ahead on the facility's clock (06:00 UTC, 20:00 in Kiritimati).
	today := testNow.Format(models.DateLayout)
	rec = s.do(anonymous, http.MethodGet, fmt.Sprintf("/api/v1/facilities/%d/availability?date=%s&timezone=Pacific/Kiritimati", s.fx.Facility.ID, today), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	display := decode[struct {
		Timezone        string                   `json:"timezone"`
		DisplayTimezone string                   `json:"displayTimezone"`
		Dates           []availability.DateGroup `json:"dates"`
	}](t, rec)
	assert.Equal(t, "UTC", display.Timezone)
	assert.Equal(t, "Pacific/Kiritimati", display.DisplayTimezone)
	require.Len(t, display.Dates, 1)
	assert.Equal(t, today, display.Dates[0].Date)
	assert.Len(t, display.Dates[0].Slots, 2)

	rec = s.do(s.staff(), http.MethodGet, fmt.Sprintf("/api/v1/providers/%d/slots?date=%s", created.ID, bookingDate), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]models.AvailabilitySlot](t, rec)["slots"], 3)

	config["enabled"] = false
	rec = s.do(s.staff(), http.MethodPut, fmt.Sprintf("/api/v1/providers/%d", created.ID), config)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[models.ProviderConfig](t, rec).Enabled)

	rec = s.do(anonymous, http.MethodGet, availabilityPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"facilityId": %d, "timezone": "UTC", "dates": []}`, s.fx.Facility.ID), rec.Body.String())

	rec = s.do(anonymous, http.MethodGet, availabilityPath+"&timezone=Mars/Olympus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(anonymous, http.MethodGet, "/api/v1/facilities/999/availability", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func signedStripeEvent(t *testing.T, eventType, intentID string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_api_1",
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": %q, "object": "payment_intent"}}
	}`, stripe.APIVersion, eventType, intentID))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestStripeWebhookConfirmsBooking(t *testing.T) {
	s := newTestServer(t)
	created := s.createBooking(s.player(), "16:00", "17:00", false)
	require.NotEmpty(t, created.Booking.PaymentRef)

	payload, header := signedStripeEvent(t, "payment_intent.succeeded", created.Booking.PaymentRef)
	post := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", signature)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post(strings.Replace(header, "v1=", "v1=00", 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := s.store.GetBooking(context.Background(), created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)

	rec = post(header)
	assert.Equal(t, http.StatusOK, rec.Code, "replays are acknowledged")
}
