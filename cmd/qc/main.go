// Command qc runs the radar volume quality-control service: it consumes scan
// jobs from Kafka, masks noise and unfolds Doppler velocities in the
// referenced volume files, and publishes QC result summaries.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/radar-qc-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/radar-qc-service/internal/adapter/kafka"
	"github.com/couchcryptid/radar-qc-service/internal/adapter/unfold"
	"github.com/couchcryptid/radar-qc-service/internal/adapter/volfile"
	"github.com/couchcryptid/radar-qc-service/internal/config"
	"github.com/couchcryptid/radar-qc-service/internal/domain"
	"github.com/couchcryptid/radar-qc-service/internal/observability"
	"github.com/couchcryptid/radar-qc-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Initialize the dealiaser (feature-flagged via DEALIAS_ENABLED / DEALIAS_URL).
	var dealiaser domain.Dealiaser
	if cfg.Dealias.Enabled {
		dealiaser = unfold.NewClient(cfg.Dealias.ServiceURL, cfg.Dealias.Timeout, logger)
		metrics.DealiasEnabled.Set(1)
		logger.Info("velocity dealiasing enabled",
			"url", cfg.Dealias.ServiceURL,
			"timeout", cfg.Dealias.Timeout,
			"velocity_field", cfg.Dealias.VelocityField,
		)
	} else {
		logger.Info("velocity dealiasing disabled")
	}

	store := volfile.NewStore()
	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewQCTransformer(store, store, dealiaser, cfg, logger, metrics)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start QC pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
