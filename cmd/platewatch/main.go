package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"platewatch/internal/config"
	"platewatch/internal/db"
	httphandler "platewatch/internal/http"
	"platewatch/internal/logger"
	"platewatch/internal/notify"
	"platewatch/internal/repository"
	"platewatch/internal/runlock"
	"platewatch/internal/service"
	"platewatch/internal/storage"
)

func main() {
	runOnce := flag.Bool("once", false, "execute a single run and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	readingRepo := repository.NewReadingRepository(database)
	catalogRepo := repository.NewCatalogRepository(database)
	scoreRepo := repository.NewScoreRepository(database)
	inactivityRepo := repository.NewInactivityRepository(database)

	notifier, err := notify.New(cfg.Kafka)
	if err != nil && !errors.Is(err, notify.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize kafka notifier")
	}
	if err != nil {
		appLogger.Warn().Msg("kafka not configured, run summaries and alerts will be dropped")
	}
	defer notifier.Close()

	snapshots, err := storage.New(cfg.Storage)
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize snapshot store")
	}
	if err != nil {
		appLogger.Warn().Msg("object storage not configured, report exports will be disabled")
	}

	var locker runlock.Locker
	if cfg.Redis.Addr != "" {
		locker = runlock.NewRedisLocker(cfg.Redis)
	} else {
		appLogger.Warn().Msg("redis not configured, run lock is process-local")
		locker = runlock.NewLocalLocker()
	}

	engine := service.NewEngine(cfg, readingRepo, catalogRepo, scoreRepo, inactivityRepo,
		locker, notifier, snapshots, appLogger)

	if *runOnce {
		if _, err := engine.Run(context.Background()); err != nil {
			if errors.Is(err, runlock.ErrAlreadyRunning) {
				appLogger.Info().Msg("another run is in progress, skipping")
				return
			}
			appLogger.Fatal().Err(err).Msg("run failed")
		}
		return
	}

	handler := httphandler.NewHandler(scoreRepo, inactivityRepo, appLogger)
	router := httphandler.NewRouter(handler, cfg.Environment, database)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting platewatch")

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		runScheduled(schedulerCtx, engine, cfg.Engine.RunInterval, appLogger)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down")

	stopScheduler()
	<-schedulerDone

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("platewatch exited")
}

// runScheduled executes one run immediately, then on every tick. A zero
// interval disables scheduling; the process then only serves the API.
func runScheduled(ctx context.Context, engine *service.Engine, interval time.Duration, log zerolog.Logger) {
	runAndLog := func() {
		if _, err := engine.Run(ctx); err != nil {
			if errors.Is(err, runlock.ErrAlreadyRunning) {
				log.Info().Msg("another run is in progress, skipping")
				return
			}
			log.Error().Err(err).Msg("scheduled run failed")
		}
	}

	runAndLog()
	if interval <= 0 {
		log.Warn().Msg("run interval not configured, scheduler disabled after initial run")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runAndLog()
		}
	}
}
