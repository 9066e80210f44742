package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"planai-api/domain"
)

const settingsFile = "planai-settings.json"

// SettingsStore holds the user's AI settings, persisted separately from the
// entity snapshot so flipping a provider never rewrites entity data.
type SettingsStore struct {
	mu       sync.Mutex
	path     string
	logger   *log.Logger
	settings domain.Settings
}

// NewSettingsStore loads settings from dir, falling back to the provided
// defaults when the file is missing or unreadable.
func NewSettingsStore(dir string, defaults domain.Settings, logger *log.Logger) *SettingsStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if !defaults.Provider.Valid() {
		defaults.Provider = domain.ProviderOpenAI
	}
	s := &SettingsStore{
		path:     filepath.Join(dir, settingsFile),
		logger:   logger,
		settings: defaults,
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warnf("settings unreadable, using defaults: %v", err)
		}
		return s
	}
	var loaded domain.Settings
	if err := sonic.Unmarshal(data, &loaded); err != nil || !loaded.Provider.Valid() {
		logger.Warn("settings undecodable, using defaults")
		return s
	}
	s.settings = loaded
	return s
}

// Settings returns the current settings.
func (s *SettingsStore) Settings() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the settings and writes them through. Save failures
// are logged; the in-memory value still changes.
func (s *SettingsStore) SetSettings(settings domain.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings

	data, err := sonic.Marshal(settings)
	if err != nil {
		s.logger.Errorf("encode settings: %v", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Errorf("write settings: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Errorf("write settings: %v", err)
	}
}
