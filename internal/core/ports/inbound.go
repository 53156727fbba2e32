package ports

import (
	"context"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

// BatchService is the inbound contract for the batch submission workflow.
type BatchService interface {
	Start(ctx context.Context, input domain.StagedInput) (*domain.BatchSnapshot, error)
	Submit(ctx context.Context, input domain.StagedInput) (*domain.BatchSnapshot, error)
	Reset()
	Snapshot() domain.BatchSnapshot
	Result(index int) (domain.Result, error)
	Subscribe() (<-chan domain.BatchSnapshot, func())
}

// ModelCatalog exposes the backend-advertised models.
type ModelCatalog interface {
	Load(ctx context.Context) []domain.ModelDescriptor
	Models() []domain.ModelDescriptor
	Default() (domain.ModelDescriptor, bool)
	Lookup(name string) (domain.ModelDescriptor, bool)
}

// SettingsService reads and edits the presentation feature flags.
type SettingsService interface {
	Get(ctx context.Context) (domain.FeatureFlags, error)
	Toggle(ctx context.Context, key string) (domain.FeatureFlags, error)
	Update(ctx context.Context, key string, value any) (domain.FeatureFlags, error)
}
