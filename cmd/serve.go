package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatterbox/internal/app/registry"
	"chatterbox/internal/app/server"
	"chatterbox/internal/app/worker"
	"chatterbox/internal/config"
	"chatterbox/internal/core/services"
	"chatterbox/internal/platform/logger"
	"chatterbox/internal/platform/metrics"
	"chatterbox/internal/platform/telemetry"
	"chatterbox/internal/plugins/postgres"
	redisPlugin "chatterbox/internal/plugins/redis"
	"chatterbox/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func runServe(ctx context.Context) error {
	// Config
	cfg := config.Load()
	if cfg.SecretToken == "" {
		return errors.New("JWT_SECRET is required")
	}

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
		otelShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	pdb, err := postgres.New(ctx, *cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "err", err)
		return err
	}
	defer pdb.Close()
	log.Info("postgres connected")
	rdb, err := redisPlugin.NewRedisClient(ctx, *cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL, "err", err)
		return err
	}
	defer rdb.Close()
	log.Info("redis connected")

	// Adapters
	profileRepo := redisPlugin.NewCachedProfileRepository(log, rdb, postgres.NewProfileRepository(pdb), cfg.Redis.ProfileTTL)
	channelRepo := postgres.NewChannelRepository(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	readRepo := postgres.NewReadRepository(pdb)
	txManager := postgres.NewTxManager(pdb)
	lastSeen := redisPlugin.NewLastSeenIndex(rdb)
	msgQueue := redisPlugin.NewRedisMessageQueue(log, rdb, cfg.Worker.ClaimIdle)
	m := metrics.New(prometheus.DefaultRegisterer)

	// Core services
	now := time.Now
	hub := registry.NewRegistry(log)
	conns := services.NewConnectionRegistry()
	presence := services.NewPresenceTracker(cfg.Presence.IdleThreshold, now)
	announcer := services.NewPresenceAnnouncer(log, presence, profileRepo, hub, m)
	sweeper := services.NewPresenceSweeper(log, cfg.Presence.SweepInterval, presence, announcer, m)
	welcome := services.NewWelcomeService(log, msgRepo, profileRepo, hub, m, cfg.Chat.BotUserID, cfg.Chat.WelcomeText, now)
	router := services.NewMembershipRouter(log, channelRepo, hub, conns, welcome, cfg.Chat.DefaultChannel)
	ledger := services.NewUnreadLedger(log, channelRepo, msgRepo, readRepo, profileRepo, txManager, hub, now)
	gateway := services.NewGateway(log, services.GatewayConfig{RecentLimit: cfg.Presence.RecentLimit},
		conns, presence, announcer, router, ledger, hub, profileRepo, channelRepo, lastSeen, m, now)
	tokenSvc := services.NewTokenService(cfg.SecretToken)

	sweeper.Start(ctx)
	defer sweeper.Stop()

	if cfg.Worker.Enabled {
		wrkr := worker.NewEventWorker(log, msgQueue, gateway, cfg.Worker.EventStream, cfg.Worker.EventGroup)
		if err := wrkr.Run(ctx); err != nil {
			return err
		}
	}

	// Server
	srv := server.NewServer(log, cfg.Service.Name, cfg.Service.Add, server.Deps{
		Gateway:        gateway,
		Ledger:         ledger,
		Tokens:         tokenSvc,
		Queue:          msgQueue,
		Stream:         cfg.Worker.EventStream,
		EventsSecret:   cfg.Service.EventsSecret,
		AllowedOrigins: cfg.Service.AllowedOrigins,
	})
	if cfg.Service.EventsSecret == "" {
		log.Warn("main - server - EVENTS_SECRET unset, POST /internal/events disabled")
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("main - shutdown - started")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("main - shutdown - server shutdown failed", logging.Err(err))
		return err
	}
	return nil
}

func runToken(cmd *cobra.Command, subject string) error {
	cfg := config.Load()
	if cfg.SecretToken == "" {
		return errors.New("JWT_SECRET is required")
	}
	token, err := services.NewTokenService(cfg.SecretToken).GenerateToken(subject)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
