package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"propmatch/server/config"
	"propmatch/server/internal/api"
	"propmatch/server/internal/database"
	"propmatch/server/internal/dedup"
	"propmatch/server/internal/geo"
	"propmatch/server/internal/processor"
	"propmatch/server/internal/queue"
	"propmatch/server/internal/scheduler"
	"propmatch/server/internal/scoring"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Server.DBPath), 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", cfg.Server.DBPath)

	db, err := database.New(cfg.Server.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	logger.Info("Running database migrations...")
	if err := database.MigrateSchema(db); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	listings := database.NewListingStore(db)
	candidates := database.NewCandidateStore(db)
	properties := database.NewPropertyStore(db)

	geoIndex := geo.NewIndex(db, cfg.Dedup.MaxCandidates, logger)
	scorer := scoring.NewScorer(cfg.Dedup)
	merger := dedup.NewMerger(cfg.Dedup, logger)
	engine := dedup.NewEngine(db, listings, candidates, properties, geoIndex, scorer, merger, cfg.Dedup, logger)

	taskQueue := queue.NewTaskQueue(
		cfg.Queue.BufferSize,
		time.Duration(cfg.Queue.InFlightTTL)*time.Minute,
		logger,
	)

	dedupProcessor := processor.NewDedupProcessor(engine, taskQueue, cfg, logger)
	dedupProcessor.Start()

	sweep := scheduler.NewScheduler(listings, taskQueue, cfg.Scheduler.SweepSpec, cfg.Scheduler.SweepBatchSize, logger)
	if err := sweep.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}

	handler := api.NewHandler(db, engine, taskQueue, logger)
	router := api.SetupRouter(handler)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	sweep.Stop()
	taskQueue.Close()
	dedupProcessor.Stop()
	logger.Info("Shutdown complete")
}
