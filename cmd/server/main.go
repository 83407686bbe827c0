package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"folderzip/internal/auth"
	"folderzip/internal/circuitbreaker"
	"folderzip/internal/config"
	"folderzip/internal/database"
	"folderzip/internal/exporter"
	"folderzip/internal/handlers"
	"folderzip/internal/metrics"
	"folderzip/internal/server"
	"folderzip/internal/storage"
)

func main() {
	configFile := flag.String("config", "", "Path to config file (overrides CONFIG_FILE env var)")
	flag.Parse()

	loaded, err := config.LoadEnvFile(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to init logger:", err)
	}
	defer logger.Sync()

	if loaded != "" {
		logger.Info("loaded config file", zap.String("path", loaded))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	m := metrics.New()
	m.StartRuntimeMetricsCollector()

	storageBreaker := circuitbreaker.New("storage", cfg, m)

	db, err := database.New(ctx, cfg, m)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("initialized database", zap.String("engine", cfg.DBEngine))

	blobs, err := storage.New(ctx, cfg, m, storageBreaker)
	if err != nil {
		logger.Fatal("failed to initialize storage provider", zap.Error(err))
	}
	logger.Info("initialized storage provider", zap.String("type", blobs.Type()))

	exp := exporter.New(logger, db, blobs, m, cfg.MaxConcurrent, cfg.MaxFilesPerExport)
	verifier := auth.NewVerifier(cfg.SigningSecret, cfg.EnforceSigning, m)
	notifier := handlers.NewNotifier(logger, m, cfg.CallbackURL, cfg.CallbackMaxRetries, cfg.CallbackRetryDelay)

	exportHandler := handlers.NewExportHandler(
		logger,
		db,
		exp,
		verifier,
		m,
		notifier,
		cfg.AllowPasswordProtected,
		int64(cfg.MaxActiveExports),
	)
	healthHandler := handlers.NewHealthHandler(logger, db, blobs, m)

	srv := server.New(logger, cfg, exportHandler, healthHandler)
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	if err := srv.WaitForShutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
