package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chatguard-lab/internal/api"
	"chatguard-lab/internal/api/handlers"
	"chatguard-lab/internal/config"
	"chatguard-lab/internal/domain/parsers"
	"chatguard-lab/internal/domain/services"
	"chatguard-lab/internal/infrastructure/blob"
	"chatguard-lab/internal/infrastructure/cache"
	"chatguard-lab/internal/infrastructure/database"
	"chatguard-lab/internal/infrastructure/database/repository"
	"chatguard-lab/internal/streaming"
	"chatguard-lab/pkg/logger"
)

func main() {
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var log *logger.Logger
	if cfg.App.Environment == "production" {
		log = logger.NewProduction()
	} else {
		log = logger.NewDevelopment()
	}
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("starting chatguard api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Infrastructure
	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisCache.Close()

	repos := repository.New(db.Pool())

	// Streaming: NATS is optional, the local event bus and WS hub always run
	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, realtime events stay local")
			natsPublisher = nil
		} else {
			defer natsPublisher.Close()
		}
	}

	eventBus := streaming.NewEventBus(natsPublisher, log)
	defer eventBus.Close()

	wsHub := streaming.NewWebSocketHub(log)
	go wsHub.Run(ctx)

	// Upload sessions
	store, err := blob.NewFSStore(cfg.Upload.TempDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create upload store")
	}
	uploads := services.NewUploadManager(cfg.Upload, store, log)
	go uploads.Run(ctx)

	// Import pipeline
	registry := parsers.NewRegistry(log)
	registry.Register(parsers.NewWhatsAppParser(log, cfg.Import.ParserMaxFileSize))
	registry.Register(parsers.NewTelegramParser(log, cfg.Import.ParserMaxFileSize))

	validator := services.NewFileValidator(cfg.Upload, log)
	extractor := services.NewEntityExtractor(log)
	risk := services.NewRiskEngine(log)

	statusCache := cache.NewImportStatusCache(redisCache, cfg.Import.StatusCacheTTL, log)
	publisher := streaming.NewEventBusPublisher(eventBus, wsHub, log)

	orchestrator := services.NewImportOrchestrator(
		cfg.Import,
		repos.Imports,
		repos.Messages,
		repos.Participants,
		registry,
		validator,
		extractor,
		risk,
		publisher,
		statusCache,
		log,
	)

	// HTTP server
	h := handlers.NewHandlers(handlers.Dependencies{
		Uploads:      uploads,
		Orchestrator: orchestrator,
		Cache:        redisCache,
		Repos:        repos,
		WSHub:        wsHub,
		Logger:       log,
	})

	router := api.NewRouter(*cfg, h, redisCache, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
