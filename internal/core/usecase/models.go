package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
	"github.com/kirillkom/adtrack-console/internal/core/ports"
)

// ModelCatalog holds the models advertised by the backend. The first
// non-empty fetch wins; later fetches never replace it.
type ModelCatalog struct {
	client ports.InferenceClient

	mu     sync.RWMutex
	models []domain.ModelDescriptor
	loaded bool
}

func NewModelCatalog(client ports.InferenceClient) *ModelCatalog {
	return &ModelCatalog{client: client}
}

// Load fetches the model list unless it is already known. An empty fetch
// leaves the catalog empty so the caller can try again later.
func (c *ModelCatalog) Load(ctx context.Context) []domain.ModelDescriptor {
	if c.isLoaded() {
		return c.Models()
	}

	fetched := c.client.ListModels(ctx)
	if len(fetched) == 0 {
		slog.Debug("model_catalog_empty")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.models = append([]domain.ModelDescriptor(nil), fetched...)
		c.loaded = true
		slog.Info("model_catalog_loaded", "models", len(c.models), "default", c.models[0].Name)
	}
	return cloneModels(c.models)
}

func (c *ModelCatalog) Models() []domain.ModelDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneModels(c.models)
}

func (c *ModelCatalog) Default() (domain.ModelDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.models) == 0 {
		return domain.ModelDescriptor{}, false
	}
	return c.models[0], true
}

// Lookup finds a model by name.
func (c *ModelCatalog) Lookup(name string) (domain.ModelDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.models {
		if m.Name == name {
			return m, true
		}
	}
	return domain.ModelDescriptor{}, false
}

func (c *ModelCatalog) isLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func cloneModels(models []domain.ModelDescriptor) []domain.ModelDescriptor {
	if len(models) == 0 {
		return nil
	}
	return append([]domain.ModelDescriptor(nil), models...)
}
