// Command serve answers road speed predictions over HTTP from the persisted
// road model records.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/road-rainfall-speed/internal/adapter/http"
	"github.com/couchcryptid/road-rainfall-speed/internal/candidate"
	"github.com/couchcryptid/road-rainfall-speed/internal/config"
	"github.com/couchcryptid/road-rainfall-speed/internal/inference"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
	"github.com/couchcryptid/road-rainfall-speed/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	files := store.NewFileStore(cfg.ModelDir, cfg.AggregatePath, logger, metrics)
	records := store.NewCachedStore(files, cfg.ModelCacheSize, metrics)
	engine := inference.NewEngine(records, inference.Options{
		Candidates:          candidate.Default(),
		SimilarityThreshold: cfg.SimilarityThreshold,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, engine, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if roads, err := engine.AvailableRoads(ctx); err != nil {
		logger.Warn("could not list road models", "dir", cfg.ModelDir, "error", err)
	} else {
		logger.Info("road models available", "roads", len(roads), "dir", cfg.ModelDir, "cache_size", cfg.ModelCacheSize)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
