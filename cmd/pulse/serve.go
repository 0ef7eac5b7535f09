package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/pulsechat/pulse/api/auth"
	"github.com/pulsechat/pulse/api/bus"
	"github.com/pulsechat/pulse/api/server"
	"github.com/pulsechat/pulse/api/services"
	"github.com/pulsechat/pulse/api/store"
	"github.com/pulsechat/pulse/pkg/otel"
	"github.com/pulsechat/pulse/shared/backoff"
	"github.com/pulsechat/pulse/shared/db"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the realtime messaging server",
		Long: `Start the Pulse WebSocket server.

Required configuration:
  - PostgreSQL database (PULSE_POSTGRES_URL)
  - Signing secret for access tokens (PULSE_AUTH_SECRET)

Optional:
  - Redis fan-out for multi-instance deployments (PULSE_REDIS_URL)
  - OTLP telemetry endpoint (PULSE_OTEL_ENDPOINT)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("serve requires a signing secret, set PULSE_AUTH_SECRET")
	}

	otelResult, err := otel.Setup(otel.Config{
		ServiceName:  "pulse-api",
		Environment:  cfg.Otel.Environment,
		OTLPEndpoint: cfg.Otel.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	slog.SetDefault(otelResult.Logger)
	defer func() {
		if err := otelResult.Shutdown(context.Background()); err != nil {
			slog.Error("telemetry shutdown", "error", err)
		}
	}()

	pool, err := db.Connect(ctx, db.Config{
		URL:      cfg.Database.URL,
		Timezone: cfg.Database.Timezone,
		MaxConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	s := store.New(pool)

	// The bus is constructed cold and started only after the registry
	// exists, so delivery never races registry construction.
	var fanout bus.Bus
	var start func(bus.Handler)
	if cfg.IsRedisConfigured() {
		// The broker may come up after us; retry before giving up.
		var rb *bus.RedisBus
		err = backoff.Retry(ctx, backoff.Quick, func(ctx context.Context, attempt int) error {
			var err error
			rb, err = bus.NewRedis(ctx, cfg.Redis.URL)
			if err != nil {
				slog.Warn("redis connect failed", "attempt", attempt, "error", err)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		fanout, start = rb, rb.Start
		slog.Info("redis fan-out connected")
	} else {
		mb := bus.NewMemory()
		fanout, start = mb, mb.Start
		slog.Warn("no redis configured, using in-process bus; this instance cannot be clustered")
	}
	defer fanout.Close()

	registry := server.NewRegistry(fanout)
	start(registry.Deliver)
	pub := services.NewPublisher(fanout)

	dispatcher := server.NewDispatcher(
		services.NewMessageService(s, pub),
		services.NewReceiptService(s, pub),
		services.NewPresenceService(s, pub),
		services.NewTypingService(s, pub, cfg.Limits.TypingInterval),
		services.NewReactionService(s, pub),
		services.NewSubscriptionService(s),
		registry,
	)

	gate := auth.NewGate(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	limiter, err := auth.NewConnectLimiter(cfg.Limits.ConnectsPerMin)
	if err != nil {
		return fmt.Errorf("init connect limiter: %w", err)
	}

	srv := server.NewServer(cfg, s, gate, limiter, registry, dispatcher)

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("listening", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		registry.CloseAll(websocket.CloseNormalClosure, "server shutting down")
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		slog.Info("server stopped")
		return nil
	}
}
