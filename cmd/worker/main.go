package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/adtrack-console/internal/config"
	"github.com/kirillkom/adtrack-console/internal/core/domain"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/queue/nats"
	"github.com/kirillkom/adtrack-console/internal/observability/logging"
	"github.com/kirillkom/adtrack-console/internal/observability/metrics"
)

const serviceName = "adtrack-worker"

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))
	if envErr != nil {
		slog.Debug("dotenv_not_loaded", "error", envErr)
	}
	if cfg.NATSURL == "" {
		slog.Error("worker_requires_nats", "hint", "set NATS_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		slog.Error("queue_connect_failed", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = queue.SubscribeBatchSettled(ctx, func(_ context.Context, event domain.BatchSettledEvent) error {
		start := time.Now()
		workerMetrics.StartEvent()
		if !event.SettledAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, start.Sub(event.SettledAt))
		}

		err := handleBatchSettled(event)
		if err == nil {
			workerMetrics.RecordSummary(serviceName, event.Summary)
		}
		workerMetrics.FinishEvent(serviceName, time.Since(start), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func handleBatchSettled(event domain.BatchSettledEvent) error {
	if event.BatchID == "" {
		return errors.New("batch event without id")
	}
	slog.Info("batch_settled_received",
		"batch_id", event.BatchID,
		"model", event.Model,
		"total", event.Summary.Total,
		"positive", event.Summary.Positive,
		"negative", event.Summary.Negative,
		"failed", event.Summary.Failed,
		"files", len(event.Filenames),
		"duration_ms", event.DurationMS,
	)
	return nil
}
