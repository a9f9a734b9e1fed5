// internal/api/router.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/blocks"
	"github.com/codr1/courtbook/internal/api/bookings"
	"github.com/codr1/courtbook/internal/api/providers"
	"github.com/codr1/courtbook/internal/api/slots"
	"github.com/codr1/courtbook/internal/api/webhooks"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/provider"
	"github.com/codr1/courtbook/internal/ratelimit"
	"github.com/codr1/courtbook/internal/refund"
	"github.com/codr1/courtbook/internal/schedule"
	"github.com/codr1/courtbook/internal/store"
)

const healthCheckTimeout = 2 * time.Second

// Deps are the engine services the HTTP surface is built on.
type Deps struct {
	Store     *store.Store
	Bookings  *booking.Service
	Refunds   *refund.Service
	Schedule  *schedule.Service
	Registry  *provider.Registry
	Providers *provider.Service
	Clock     clock.Clock

	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil leaves the endpoint unregistered.
	Gatherer prometheus.Gatherer
	// Ping reports storage health for /health.
	Ping func(ctx context.Context) error
	// RateLimiter throttles public and player routes; nil disables it.
	RateLimiter *ratelimit.Limiter

	StripeWebhookSecret string
	MaxGroupedOptions   int
	MaxSlots            int
}

// NewRouter wires every route and the shared middleware. Identity comes from
// the X-User-ID and X-User-Role headers set by the fronting proxy.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(WithMetrics(d.Metrics))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apiutil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apiutil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/health", healthHandler(d.Ping)).Methods(http.MethodGet)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	bookingHandler := bookings.NewHandler(d.Bookings, d.Refunds)
	slotHandler := slots.NewHandler(d.Store, d.Providers, slots.Options{
		Clock:      d.Clock,
		MaxOptions: d.MaxGroupedOptions,
		MaxSlots:   d.MaxSlots,
	})
	blockHandler := blocks.NewHandler(d.Schedule)
	providerHandler := providers.NewHandler(d.Store, d.Registry, d.Providers)
	webhookHandler := webhooks.NewHandler(d.Bookings, d.StripeWebhookSecret)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	throttle := WithRateLimit(d.RateLimiter)

	// Gateway callbacks are never throttled.
	v1.HandleFunc("/webhooks/stripe", webhookHandler.Stripe).Methods(http.MethodPost)

	public := v1.NewRoute().Subrouter()
	public.Use(throttle)
	public.HandleFunc("/courts/{id:[0-9]+}/open-slots", slotHandler.OpenSlots).Methods(http.MethodGet)
	public.HandleFunc("/facilities/{id:[0-9]+}/availability", slotHandler.FacilityAvailability).Methods(http.MethodGet)

	players := v1.NewRoute().Subrouter()
	players.Use(RequireActor, throttle)
	players.HandleFunc("/bookings", bookingHandler.Create).Methods(http.MethodPost)
	players.HandleFunc("/bookings", bookingHandler.List).Methods(http.MethodGet)
	players.HandleFunc("/bookings/{id:[0-9]+}", bookingHandler.Get).Methods(http.MethodGet)
	players.HandleFunc("/bookings/{id:[0-9]+}/cancel", bookingHandler.Cancel).Methods(http.MethodPost)

	staff := v1.NewRoute().Subrouter()
	staff.Use(RequireStaff)
	staff.HandleFunc("/bookings/{id:[0-9]+}/transition", bookingHandler.Transition).Methods(http.MethodPost)
	staff.HandleFunc("/blocks", blockHandler.Create).Methods(http.MethodPost)
	staff.HandleFunc("/blocks/{id:[0-9]+}", blockHandler.Delete).Methods(http.MethodDelete)
	staff.HandleFunc("/facilities/{id:[0-9]+}/blocks", blockHandler.List).Methods(http.MethodGet)
	staff.HandleFunc("/providers", providerHandler.Create).Methods(http.MethodPost)
	staff.HandleFunc("/providers/{id:[0-9]+}", providerHandler.Get).Methods(http.MethodGet)
	staff.HandleFunc("/providers/{id:[0-9]+}", providerHandler.Update).Methods(http.MethodPut)
	staff.HandleFunc("/providers/{id:[0-9]+}/slots", providerHandler.Preview).Methods(http.MethodGet)

	// Outermost first: request id, then recovery and logging under it.
	return ChainMiddleware(r, WithActor, WithLogging, WithRecovery, WithRequestID)
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				log.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
				apiutil.WriteErrorMessage(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
