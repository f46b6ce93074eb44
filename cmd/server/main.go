package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskdeck/configs"
	"taskdeck/internal/connectivity"
	"taskdeck/internal/delivery/rest"
	"taskdeck/internal/delivery/websocket"
	"taskdeck/internal/infrastructure/logger"
	"taskdeck/internal/localcache"
	"taskdeck/internal/repository"
	"taskdeck/internal/server"
	"taskdeck/internal/session"
	"taskdeck/internal/store"
	"taskdeck/internal/store/memory"
	"taskdeck/internal/store/postgres"
)

func main() {
	// Initialize logger from environment
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Sync()

	log := logger.Named("main")

	// Load configuration
	cfg, err := configs.LoadConfig("")
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Select the document store backend
	var taskStore store.TaskStore
	switch cfg.Database.Backend {
	case "memory":
		taskStore = memory.New()
		log.Info("Using in-memory store, nothing will be persisted")
	default:
		pool, err := postgres.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool, "migrations"); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
		taskStore = postgres.NewStore(pool, logger.Named("store"))
	}

	// Local snapshot cache for instant paint on bind
	var cache repository.SnapshotCache
	if cfg.Cache.Enabled {
		c, err := localcache.Open(cfg.Cache.Path)
		if err != nil {
			log.Fatal("Failed to open local cache", zap.Error(err))
		}
		defer c.Close()
		cache = c
	}

	// Connectivity probe drives the online/offline policy
	monitor := connectivity.NewProbeMonitor(
		cfg.Connectivity.ProbeAddr,
		cfg.Connectivity.ProbeInterval,
		logger.Named("connectivity"),
	)
	defer monitor.Stop()

	sessions := session.NewManager(taskStore, monitor, cache, logger.Named("session"))
	defer sessions.Shutdown()

	h := rest.NewHandler(sessions, logger.Named("rest"))
	hub := websocket.NewHub(sessions, logger.Named("websocket"))

	srv := server.NewServer(cfg.Server, h, hub, logger.Named("server"))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("address", cfg.Server.Address()),
		zap.String("backend", cfg.Database.Backend),
	)

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server shutdown failed", zap.Error(err))
	}

	log.Info("Server stopped")
}
