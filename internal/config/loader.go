package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up when no path is given.
const DefaultFile = "refetch.yaml"

// Loader handles loading configuration files.
type Loader struct {
	configDir string
}

// NewLoader creates a new config loader.
func NewLoader(configDir string) *Loader {
	return &Loader{configDir: configDir}
}

// IsConfigFile reports whether path has an extension the loader can parse.
func IsConfigFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFile loads a configuration from a specific file path.
// Environment variables in the config are expanded before parsing.
// Supports ${VAR} and ${VAR:-default} syntax. The format follows the
// extension: .json is JSON, .yaml and .yml are YAML.
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables before parsing
	data = ExpandEnvVarsBytes(data)

	return Parse(data, filepath.Ext(path))
}

// Parse decodes data in the format named by ext.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return &cfg, nil
}

// LoadAndValidate loads and validates a config file.
func (l *Loader) LoadAndValidate(path string) (*Config, error) {
	cfg, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed for %s:\n%w", path, err)
	}

	return cfg, nil
}

// LoadDirectory scans a directory for config files and loads them all.
func (l *Loader) LoadDirectory(dir string) ([]*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*Config
	for _, entry := range entries {
		if entry.IsDir() || !IsConfigFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		cfg, err := l.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", entry.Name(), err)
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}

// Resolve returns path unchanged when set, else DefaultFile in the config
// directory.
func (l *Loader) Resolve(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(l.configDir, DefaultFile)
}

// LoadDefault loads the default configuration from the config directory.
func (l *Loader) LoadDefault() (*Config, error) {
	return l.LoadFile(l.Resolve(""))
}
