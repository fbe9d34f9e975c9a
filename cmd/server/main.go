// merchant-ledger/cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kalamela/merchant-ledger/internal/aggregate"
	"github.com/kalamela/merchant-ledger/internal/api"
	"github.com/kalamela/merchant-ledger/internal/cache"
	"github.com/kalamela/merchant-ledger/internal/config"
	"github.com/kalamela/merchant-ledger/internal/eventstore"
	"github.com/kalamela/merchant-ledger/internal/eventstore/memory"
	"github.com/kalamela/merchant-ledger/internal/eventstore/postgres"
	"github.com/kalamela/merchant-ledger/internal/forecast"
	"github.com/kalamela/merchant-ledger/internal/realtime"
	"github.com/kalamela/merchant-ledger/internal/service"
	"github.com/kalamela/merchant-ledger/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize the event store. STORE_BACKEND=memory keeps the ledger
	// in-process, which is enough for demos and local development.
	var store eventstore.Store
	if os.Getenv("STORE_BACKEND") == "memory" {
		logger.Log.Info().Msg("Using in-memory event store")
		store = memory.New()
	} else {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		store = postgres.NewStore(db)
	}

	// Snapshot cache: redis when enabled, in-process otherwise.
	snapshots, err := cache.NewSnapshotCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Snapshot cache unavailable, continuing without one")
		snapshots = cache.NewNoopSnapshotCache()
	}

	engine := aggregate.NewEngine(store)
	forecaster := forecast.NewEngine(cfg.Forecast.WindowSize, cfg.Forecast.Multipliers)
	syncService := realtime.NewService(engine, store, snapshots, cfg.Realtime)
	dashboard := service.NewDashboard(store, engine, syncService, snapshots, forecaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	syncService.Start(ctx)

	// Initialize HTTP server
	router := api.NewRouter(dashboard, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")
	cancel()

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
