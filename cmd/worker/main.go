// Command worker archives finalized interviews: it consumes interview-completed events
// and writes one JSON artifact per candidate.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/archive"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()
	defer func() { _ = metricsSrv.Close() }()

	archiver := usecase.ArchiveService{Writer: archive.NewWriter(cfg.OutputDir)}
	consumer, err := redpanda.NewConsumer(ctx, cfg.KafkaBrokers, cfg.ArchiverGroup, cfg.CompletedTopic, archiver.Handle)
	if err != nil {
		return err
	}
	defer func() { _ = consumer.Close() }()

	slog.Info("archiver started",
		slog.String("topic", cfg.CompletedTopic),
		slog.String("group", cfg.ArchiverGroup),
		slog.String("output_dir", cfg.OutputDir))
	return consumer.Run(ctx)
}
