package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/adtrack-console/internal/config"
	"github.com/kirillkom/adtrack-console/internal/core/ports"
	"github.com/kirillkom/adtrack-console/internal/core/usecase"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/inference"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/queue/nats"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/resilience"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/adtrack-console/internal/observability/metrics"
)

type App struct {
	Config config.Config

	// Queue is nil when NATS_URL is empty.
	Queue    *nats.Queue
	Metrics  *metrics.HTTPServerMetrics
	Catalog  *usecase.ModelCatalog
	Batch    *usecase.BatchController
	Settings *usecase.SettingsUseCase

	closeFn func()
}

func New(_ context.Context, cfg config.Config) (*App, error) {
	httpMetrics := metrics.NewHTTPServerMetrics("adtrack-api")
	executor := resilience.NewExecutor(resiliencePolicy(cfg), httpMetrics.ObserveBreakerState)

	client := inference.New(cfg.InferenceURL, inference.Options{
		Timeout:     cfg.InferenceTimeout,
		PredictPath: cfg.InferencePredictPath,
		Executor:    executor,
	})

	settingsStore, err := localfs.NewSettingsStore(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("init settings store: %w", err)
	}

	var (
		queue     *nats.Queue
		publisher ports.BatchEventPublisher
	)
	if cfg.NATSURL != "" {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		publisher = queue
	}

	catalog := usecase.NewModelCatalog(client)
	batch := usecase.NewBatchController(client, catalog, usecase.BatchOptions{
		PacingDelay: cfg.BatchPacingDelay,
		Publisher:   publisher,
		Observer:    httpMetrics,
	})

	return &App{
		Config:   cfg,
		Queue:    queue,
		Metrics:  httpMetrics,
		Catalog:  catalog,
		Batch:    batch,
		Settings: usecase.NewSettingsUseCase(settingsStore),

		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
		},
	}, nil
}

// LoadModels retries the catalog fetch until the backend advertises at
// least one model or ctx is done.
func (a *App) LoadModels(ctx context.Context) {
	interval := a.Config.ModelsRetryInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if models := a.Catalog.Load(ctx); len(models) > 0 {
			return
		}
		slog.Warn("model_catalog_unavailable", "retry_in", interval.String())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resiliencePolicy(cfg config.Config) resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	policy.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	policy.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	policy.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		policy.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	policy.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	policy.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return policy
}
