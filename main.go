package main

import (
	"fmt"
	"log"
	"net/http"

	"dakforge/internal/api"
	"dakforge/internal/config"
	"dakforge/internal/logging"
	"dakforge/internal/middleware"
	"dakforge/internal/remote"
	"dakforge/internal/staging"
	"dakforge/internal/storage"
	"dakforge/internal/validation"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Initialize BadgerDB
	db, err := badger.Open(badger.DefaultOptions(cfg.Database.Path))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	// Initialize staging store
	store := staging.NewStore(storage.NewBadgerKV(db, "dak"), staging.Options{
		HistoryLimit: cfg.Staging.HistoryLimit,
		Logger:       logger.Logger,
	})

	// Initialize remote source and validation
	gh := remote.NewGitHub(cfg.Remote.BaseURL, cfg.Remote.Token)
	registry := validation.NewDefaultRegistry(logger.Logger)
	orchestrator := validation.NewOrchestrator(registry, gh, validation.OrchestratorOptions{
		CacheSize: cfg.Validation.CacheSize,
		CacheTTL:  cfg.CacheTTL(),
		Logger:    logger.Logger,
	})

	// Set up router
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("/health", healthCheck)

	// Staging, validation and file endpoints
	api.NewHandler(store, orchestrator, gh, logger).Register(mux)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
