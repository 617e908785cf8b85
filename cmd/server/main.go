package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	cooldownstore "enlist/internal/cooldown/store"
	identityhandler "enlist/internal/identity/handler"
	"enlist/internal/identity/provider"
	identityservice "enlist/internal/identity/service"
	"enlist/internal/identity/session"
	"enlist/internal/notify"
	"enlist/internal/notify/kafka"
	"enlist/internal/notify/webhook"
	"enlist/internal/platform/config"
	"enlist/internal/platform/httpserver"
	"enlist/internal/platform/logger"
	"enlist/internal/platform/metrics"
	"enlist/internal/platform/middleware"
	submissionhandler "enlist/internal/submission/handler"
	submissionservice "enlist/internal/submission/service"
	httptransport "enlist/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the services, serves until SIGINT/SIGTERM and then drains
// the server, the notification dispatcher and the store in that order.
func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := cooldownstore.Open(ctx, cfg, cooldownstore.Options{Metrics: m, Logger: log})
	if err != nil {
		return fmt.Errorf("open cooldown store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close cooldown store", "error", err)
		}
	}()

	relays, closeRelays, err := buildRelays(ctx, cfg.Notify, log)
	if err != nil {
		return err
	}
	defer closeRelays()
	dispatcher := notify.NewDispatcher(relays,
		notify.WithTimeout(cfg.Notify.Timeout),
		notify.WithMaxInFlight(cfg.Notify.MaxInFlight),
		notify.WithBreakerPolicy(cfg.Notify.BreakerThreshold, cfg.Notify.BreakerCooldown),
		notify.WithLogger(log),
		notify.WithMetrics(m),
	)

	codec, err := session.NewCodec(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TTL, cfg.Session.LoginTTL)
	if err != nil {
		return fmt.Errorf("session codec: %w", err)
	}
	discord := provider.NewDiscord(provider.Config{
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		RedirectURL:  cfg.Discord.RedirectURL,
		AuthURL:      cfg.Discord.AuthURL,
		TokenURL:     cfg.Discord.TokenURL,
		APIBaseURL:   cfg.Discord.APIBaseURL,
	})
	identitySvc, err := identityservice.New(discord, codec,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(m),
		identityservice.WithHandshakeTimeout(cfg.Discord.HandshakeTimeout),
	)
	if err != nil {
		return err
	}
	submissionSvc, err := submissionservice.New(store, dispatcher,
		submissionservice.WithLogger(log),
		submissionservice.WithMetrics(m),
		submissionservice.WithCooldown(cfg.Cooldown.Duration),
	)
	if err != nil {
		return err
	}

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, middleware.WithRateLimitLogger(log))
	limiter.StartJanitor(ctx, time.Minute)

	identity := identityhandler.New(identitySvc, log, cfg.Session.CookieSecure)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        m,
		Gatherer:       reg,
		RateLimiter:    limiter,
		Health:         store,
		IdentityLoader: identity.LoadIdentity,
		RequestTimeout: cfg.RequestTimeout,
		Handlers: []httptransport.RouteRegistrar{
			identity,
			submissionhandler.New(submissionSvc, log, cfg.Cooldown.Duration),
		},
	})

	srv := httpserver.New(cfg.Addr, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting enlist", "addr", cfg.Addr, "env", cfg.Env, "backend", cfg.Cooldown.Backend, "sinks", cfg.Notify.Sinks)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Warn("notifications still in flight at shutdown", "error", err)
	}
	return nil
}

// buildRelays assembles the configured sinks. The returned func releases
// any sink connections.
func buildRelays(ctx context.Context, cfg config.NotifyConfig, log *slog.Logger) ([]notify.Relay, func(), error) {
	var (
		relays  []notify.Relay
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, sink := range cfg.Sinks {
		switch sink {
		case config.SinkWebhook:
			r, err := webhook.New(cfg.WebhookURL, webhook.WithTitle(cfg.Title))
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			relays = append(relays, r)
		case config.SinkKafka:
			r, err := kafka.New(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaCreateTopic)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("kafka sink: %w", err)
			}
			relays = append(relays, r)
			closers = append(closers, r.Close)
		case config.SinkLog:
			relays = append(relays, notify.NewLogRelay(log))
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown notification sink %q", sink)
		}
	}
	if len(relays) == 0 {
		relays = append(relays, notify.NewLogRelay(log))
	}
	return relays, closeAll, nil
}
