// cmd/server/server.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/clock"
	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/notify"
	"github.com/codr1/courtbook/internal/payment"
	"github.com/codr1/courtbook/internal/provider"
	"github.com/codr1/courtbook/internal/ratelimit"
	"github.com/codr1/courtbook/internal/refund"
	"github.com/codr1/courtbook/internal/schedule"
	"github.com/codr1/courtbook/internal/scheduler"
	"github.com/codr1/courtbook/internal/store"
)

// app owns everything that needs closing on shutdown.
type app struct {
	server     *http.Server
	database   *db.DB
	dispatcher *notify.Dispatcher
	scheduler  *scheduler.Service
	publisher  *notify.AMQPPublisher
	redis      *redis.Client
	limiter    *ratelimit.Limiter
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{database: database}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Database ready")

	clk := clock.Real{}
	st := store.New(database, clk)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	a.dispatcher = notify.NewDispatcher(st, m)
	a.setupNotifiers(ctx, cfg)

	var gateway payment.Gateway
	if cfg.Payments.Enabled && cfg.Payments.SecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.Payments.SecretKey, cfg.Payments.ApplicationFeePercent)
		log.Info().Bool("connected_account", cfg.Payments.ConnectedAccount != "").Msg("Stripe payments enabled")
	} else {
		log.Warn().Msg("Payments disabled: bookings that require payment stay pending")
	}

	providers, providerRegistry := a.setupProviders(ctx, cfg, st, clk, m)

	bookings := booking.NewService(st, booking.Options{
		Gateway:          gateway,
		Events:           a.dispatcher,
		Metrics:          m,
		Clock:            clk,
		ConnectedAccount: cfg.Payments.ConnectedAccount,
	})
	refunds := refund.NewService(st, refund.Options{
		Gateway: gateway,
		Events:  a.dispatcher,
		Metrics: m,
		Clock:   clk,
	})

	if cfg.Scheduler.Enabled {
		if err := a.setupScheduler(cfg, st, clk, m); err != nil {
			a.closeAll()
			return nil, err
		}
	}

	deps := api.Deps{
		Store:               st,
		Bookings:            bookings,
		Refunds:             refunds,
		Schedule:            schedule.NewService(st),
		Registry:            providerRegistry,
		Providers:           providers,
		Clock:               clk,
		Metrics:             m,
		Ping:                database.PingContext,
		StripeWebhookSecret: cfg.Payments.WebhookSecret,
		MaxGroupedOptions:   cfg.Availability.MaxGroupedOptions,
		MaxSlots:            cfg.Availability.MaxSlots,
	}
	if cfg.Features.EnableMetrics {
		deps.Gatherer = registry
	}
	if cfg.RateLimit.Enabled {
		a.limiter = ratelimit.New(&ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			TrustProxy:        cfg.RateLimit.TrustProxy,
		})
		deps.RateLimiter = a.limiter
		log.Info().Float64("rps", cfg.RateLimit.RequestsPerSecond).Int("burst", cfg.RateLimit.Burst).Msg("API rate limiting enabled")
	}

	a.server = &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// setupNotifiers adds the configured channels. A channel that cannot be
// reached at startup is skipped; bookings never depend on notifications.
func (a *app) setupNotifiers(ctx context.Context, cfg *config.Config) {
	ses := cfg.Notifications.SES
	if ses.Enabled {
		client, err := notify.NewSESClient(ctx, ses.AccessKeyID, ses.SecretAccessKey, ses.Region, ses.Sender)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize SES client, email notifications disabled")
		} else {
			a.dispatcher.Add("email", notify.NewEmailNotifier(client))
			log.Info().Str("region", ses.Region).Msg("Email notifications enabled")
		}
	}

	amqpCfg := cfg.Notifications.AMQP
	if amqpCfg.Enabled {
		publisher, err := notify.NewAMQPPublisher(amqpCfg.URL, amqpCfg.Exchange)
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to AMQP broker, event publishing disabled")
		} else {
			a.publisher = publisher
			a.dispatcher.Add("amqp", publisher)
			log.Info().Str("exchange", amqpCfg.Exchange).Msg("Event publishing enabled")
		}
	}
}

func (a *app) setupProviders(ctx context.Context, cfg *config.Config, st *store.Store, clk clock.Clock, m *metrics.Metrics) (*provider.Service, *provider.Registry) {
	requester := provider.NewRequester(provider.RequesterOptions{
		Timeout:           cfg.Providers.DefaultTimeout,
		RequestsPerSecond: cfg.Providers.RequestsPerSecond,
		Burst:             cfg.Providers.Burst,
		Metrics:           m,
	})
	registry := provider.NewDefaultRegistry(requester)

	slotCache := cfg.Providers.SlotCache
	if slotCache.Enabled {
		client := redis.NewClient(&redis.Options{Addr: slotCache.Addr, Password: slotCache.Password})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// Cache misses fall through to the provider, so a down Redis only costs latency.
			log.Warn().Err(err).Str("addr", slotCache.Addr).Msg("Redis unreachable at startup, slot cache will retry per request")
		}
		a.redis = client
		registry.Use(provider.NewSlotCache(client, slotCache.TTL).Decorator())
		log.Info().Str("addr", slotCache.Addr).Dur("ttl", slotCache.TTL).Msg("Provider slot cache enabled")
	}

	configs := provider.NewConfigCache(st, cfg.Providers.ConfigCacheTTL, clk)
	return provider.NewService(registry, configs), registry
}

func (a *app) setupScheduler(cfg *config.Config, st *store.Store, clk clock.Clock, m *metrics.Metrics) error {
	svc, err := scheduler.New()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sweeper := scheduler.NewSweeper(st, scheduler.SweepOptions{
		Events:        a.dispatcher,
		Metrics:       m,
		Clock:         clk,
		ReminderLead:  time.Duration(cfg.Scheduler.ReminderLeadHours) * time.Hour,
		FeedbackDelay: time.Duration(cfg.Scheduler.FeedbackDelayHours) * time.Hour,
		JitterBuffer:  cfg.Scheduler.JitterBuffer,
	})
	if err := scheduler.RegisterSweeps(svc, sweeper, cfg.Scheduler); err != nil {
		return err
	}
	svc.Start()
	a.scheduler = svc
	return nil
}

// shutdown drains HTTP first so no new work arrives, then lets sweeps and
// in-flight notifications finish before closing connections.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) closeAll() error {
	var errs []error
	if a.scheduler != nil {
		if err := a.scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp publisher: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := a.database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
