// Package settings reads reward settings from a YAML file owned by
// operators. The file is re-read when its modification time changes.
package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gdp-network/gdpnet/internal/domain"
)

// FileStore implements domain.SettingsStore over a YAML file.
type FileStore struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	cached  domain.RewardSettings
	loaded  bool
}

var _ domain.SettingsStore = (*FileStore)(nil)

// NewFileStore returns a store for path. The file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// RewardSettings returns the file's settings. A missing file yields the
// defaults; fields absent from the file keep their default values.
func (s *FileStore) RewardSettings(context.Context) (domain.RewardSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DefaultRewardSettings(), nil
	}
	if err != nil {
		return domain.RewardSettings{}, fmt.Errorf("stat settings: %w", err)
	}
	if s.loaded && info.ModTime().Equal(s.modTime) {
		return s.cached, nil
	}

	rs, err := Load(s.path)
	if err != nil {
		return domain.RewardSettings{}, err
	}
	s.cached, s.modTime, s.loaded = rs, info.ModTime(), true
	return rs, nil
}

// Load parses and validates a settings file.
func Load(path string) (domain.RewardSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RewardSettings{}, fmt.Errorf("read settings: %w", err)
	}
	rs := domain.DefaultRewardSettings()
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return domain.RewardSettings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := rs.Validate(); err != nil {
		return domain.RewardSettings{}, err
	}
	return rs, nil
}

// Save writes settings to path.
func Save(path string, rs domain.RewardSettings) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(rs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
