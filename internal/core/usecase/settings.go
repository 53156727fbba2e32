package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
	"github.com/kirillkom/adtrack-console/internal/core/ports"
)

// SettingsUseCase edits the feature flags kept in the local settings store.
type SettingsUseCase struct {
	store ports.SettingsStore
	mu    sync.Mutex
}

func NewSettingsUseCase(store ports.SettingsStore) *SettingsUseCase {
	return &SettingsUseCase{store: store}
}

func (uc *SettingsUseCase) Get(ctx context.Context) (domain.FeatureFlags, error) {
	flags, err := uc.store.Load(ctx)
	if err != nil {
		return domain.FeatureFlags{}, fmt.Errorf("load settings: %w", err)
	}
	return flags, nil
}

func (uc *SettingsUseCase) Toggle(ctx context.Context, key string) (domain.FeatureFlags, error) {
	return uc.modify(ctx, "toggle setting", func(flags *domain.FeatureFlags) error {
		target, err := boolFlag(flags, key)
		if err != nil {
			return err
		}
		*target = !*target
		return nil
	})
}

func (uc *SettingsUseCase) Update(ctx context.Context, key string, value any) (domain.FeatureFlags, error) {
	return uc.modify(ctx, "update setting", func(flags *domain.FeatureFlags) error {
		if key == domain.FlagAccuracyValue {
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%s expects a string value", key)
			}
			flags.AccuracyValue = strings.TrimSpace(s)
			return nil
		}

		target, err := boolFlag(flags, key)
		if err != nil {
			return err
		}
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%s expects a boolean value", key)
		}
		*target = b
		return nil
	})
}

func (uc *SettingsUseCase) modify(ctx context.Context, operation string, fn func(*domain.FeatureFlags) error) (domain.FeatureFlags, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	flags, err := uc.store.Load(ctx)
	if err != nil {
		return domain.FeatureFlags{}, fmt.Errorf("load settings: %w", err)
	}
	if err := fn(&flags); err != nil {
		return domain.FeatureFlags{}, domain.WrapError(domain.ErrInvalidInput, operation, err)
	}
	if err := uc.store.Save(ctx, flags); err != nil {
		return domain.FeatureFlags{}, fmt.Errorf("save settings: %w", err)
	}
	return flags, nil
}

func boolFlag(flags *domain.FeatureFlags, key string) (*bool, error) {
	switch key {
	case domain.FlagMultipleFiles:
		return &flags.MultipleFiles, nil
	case domain.FlagModelSelection:
		return &flags.ModelSelection, nil
	case domain.FlagShowConfidence:
		return &flags.ShowConfidence, nil
	case domain.FlagShowAccuracy:
		return &flags.ShowAccuracy, nil
	default:
		return nil, fmt.Errorf("unknown boolean setting %q", key)
	}
}
