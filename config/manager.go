package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/afero"
)

// Manager loads and saves Settings as a JSON file.
type Manager struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewManager returns a manager backed by the OS filesystem.
func NewManager(path string) *Manager {
	return NewManagerWithFs(afero.NewOsFs(), path)
}

// NewManagerWithFs returns a manager backed by fsys.
func NewManagerWithFs(fsys afero.Fs, path string) *Manager {
	return &Manager{fs: fsys, path: path}
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the settings file and applies environment overrides. A missing
// file is created with DefaultSettings.
func (m *Manager) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := DefaultSettings()
	data, err := afero.ReadFile(m.fs, m.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := m.write(settings); err != nil {
			return Settings{}, err
		}
	case err != nil:
		return Settings{}, fmt.Errorf("read settings: %w", err)
	default:
		if err := json.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("decode settings %s: %w", m.path, err)
		}
	}

	if err := env.Parse(&settings); err != nil {
		return Settings{}, fmt.Errorf("apply environment overrides: %w", err)
	}
	return settings, nil
}

// Save writes settings to disk, creating the parent directory if needed.
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(settings)
}

func (m *Manager) write(settings Settings) error {
	if dir := filepath.Dir(m.path); dir != "" && dir != "." {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := afero.WriteFile(m.fs, m.path, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
