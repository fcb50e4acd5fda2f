package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Manager handles loading, reloading and saving the configuration.
// It is safe for concurrent use.
type Manager struct {
	path string

	mu          sync.RWMutex
	current     *Config
	subscribers []func(*Config)
}

// NewManager creates a configuration manager for path. An empty path selects
// config.json under the user config dir.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user config dir: %w", err)
		}
		path = filepath.Join(configDir, "chatbridge", "config.json")
	}
	return &Manager{path: path, current: Default()}, nil
}

// GetConfigPath returns the absolute path to the config file.
func (m *Manager) GetConfigPath() string {
	return m.path
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return !os.IsNotExist(err)
}

// Current returns a copy of the active configuration.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Subscribe registers fn to run after every successful Load or Reload.
func (m *Manager) Subscribe(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Load reads the configuration from disk, overlays the environment and
// validates it. A missing file yields the defaults.
// The active configuration is left untouched on error.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.read()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = cfg
	subscribers := append([]func(*Config){}, m.subscribers...)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(cfg.Clone())
	}
	return cfg.Clone(), nil
}

// Reload is Load, logged. It backs the reload-config command and the file watcher.
func (m *Manager) Reload() (*Config, error) {
	cfg, err := m.Load()
	if err != nil {
		log.Printf("[CONFIG] WARNING: reload failed, keeping previous config: %v", err)
		return nil, err
	}
	log.Printf("[CONFIG] reloaded %s (bot_type=%s, model=%s)", m.path, cfg.BotType, cfg.Model)
	return cfg, nil
}

func (m *Manager) read() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(m.path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		doc := map[string]any{}
		if err := unmarshal(m.path, data, &doc); err != nil {
			return nil, err
		}
		if err := Validate(doc); err != nil {
			return nil, err
		}
		if err := unmarshal(m.path, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(m.path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment. Missing files are
// ignored; variables already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("[CONFIG] WARNING: failed to load %s: %v", f, err)
		}
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, v any) error {
	if isYAML(path) {
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse config yaml: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse config json: %w", err)
	}
	return nil
}
