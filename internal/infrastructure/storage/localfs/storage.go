package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

const defaultSettingsPath = "./data/settings.yaml"

// SettingsStore keeps the feature flags in a single YAML file.
type SettingsStore struct {
	path string
}

func NewSettingsStore(path string) (*SettingsStore, error) {
	if path == "" {
		path = defaultSettingsPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	return &SettingsStore{path: path}, nil
}

// Load returns the stored flags. A missing or unreadable file yields the
// defaults; keys absent from the file keep their default value.
func (s *SettingsStore) Load(_ context.Context) (domain.FeatureFlags, error) {
	flags := domain.DefaultFeatureFlags()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return flags, nil
	}
	if err != nil {
		return domain.FeatureFlags{}, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &flags); err != nil {
		slog.Warn("settings_file_corrupt", "path", s.path, "error", err)
		return domain.DefaultFeatureFlags(), nil
	}
	return flags, nil
}

// Save replaces the settings file atomically.
func (s *SettingsStore) Save(_ context.Context, flags domain.FeatureFlags) error {
	data, err := yaml.Marshal(flags)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
