// Agentlytics server - ingests agent-execution telemetry and projects it into
// dashboard read models.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/eremenai/agentlytics/pkg/api"
	"github.com/eremenai/agentlytics/pkg/config"
	"github.com/eremenai/agentlytics/pkg/database"
	"github.com/eremenai/agentlytics/pkg/queue"
	"github.com/eremenai/agentlytics/pkg/services"
	"github.com/eremenai/agentlytics/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	// podID distinguishes replicas in logs; no coordinator needs it.
	podID := getEnv("POD_NAME", uuid.NewString()[:8])

	slog.Info("Starting agentlytics",
		"version", version.String(),
		"pod_id", podID, "http_port", cfg.HTTPPort,
		"run_api", cfg.RunAPI, "run_worker", cfg.RunWorker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL, schema up to date")

	var workerPool *queue.WorkerPool
	if cfg.RunWorker {
		workerPool = queue.NewWorkerPool(podID, dbClient.Pool(), &cfg.Worker)
		workerPool.Start(ctx)
	}

	var server *api.Server
	if cfg.RunAPI {
		ingestService := services.NewIngestService(dbClient.Pool())
		statsService := services.NewStatsService(dbClient.Pool())
		server = api.NewServer(dbClient, ingestService, statsService, workerPool)

		go func() {
			slog.Info("HTTP server listening", "port", cfg.HTTPPort)
			if err := server.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server failed", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	// Let the API drain first so no new events arrive while workers finish
	// their in-flight batch.
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
		}
		cancel()
	}
	if workerPool != nil {
		workerPool.Stop()
	}

	slog.Info("Shutdown complete")
}
