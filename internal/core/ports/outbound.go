package ports

import (
	"context"
	"time"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

// InferenceClient talks to the remote inference API.
type InferenceClient interface {
	ListModels(ctx context.Context) []domain.ModelDescriptor
	Submit(ctx context.Context, req domain.InferenceRequest) (domain.RawPrediction, error)
}

// BatchEventPublisher announces settled batches.
type BatchEventPublisher interface {
	PublishBatchSettled(ctx context.Context, event domain.BatchSettledEvent) error
}

// BatchObserver records batch execution metrics.
type BatchObserver interface {
	BatchStarted(units int)
	UnitSettled(model string, failed bool, duration time.Duration)
	BatchSettled(summary domain.BatchSummary, duration time.Duration, superseded bool)
}

// SettingsStore persists the single feature-flag entry.
type SettingsStore interface {
	Load(ctx context.Context) (domain.FeatureFlags, error)
	Save(ctx context.Context, flags domain.FeatureFlags) error
}
