package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JimH44/Ketarin4Linux/internal/variable"
)

var (
	ErrJobsPathNotSet = errors.New("jobs file path is not configured: set jobs.path in the ketarin config")
	ErrInvalidGlobal  = errors.New("invalid global variable")
)

// Defaults applied when a setting is absent
const (
	DefaultMatchTimeout = variable.DefaultMatchTimeout
	DefaultTimeout      = 60 * time.Second
	DefaultMaxRetries   = 3
)

// Config represents the application configuration
type Config struct {
	Jobs     JobsConfig        `yaml:"jobs"`
	Download DownloadConfig    `yaml:"download"`
	Update   UpdateConfig      `yaml:"update"`
	Match    MatchConfig       `yaml:"match"`
	Globals  map[string]string `yaml:"globals,omitempty"`
}

// JobsConfig locates the jobs file
type JobsConfig struct {
	Path string `yaml:"path"`
}

// DownloadConfig holds download settings shared by all jobs
type DownloadConfig struct {
	Dir        string        `yaml:"dir"`
	UserAgent  string        `yaml:"user_agent,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
}

// UpdateConfig holds the update policy
type UpdateConfig struct {
	// Always forces an update pass even when an artifact already exists
	Always *bool `yaml:"always,omitempty"`
}

// MatchConfig holds pattern matching settings
type MatchConfig struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ConfigPaths returns all possible config file paths in priority order
// 1. ~/.config/ketarin/config.yaml (XDG standard - priority)
// 2. ~/.ketarin/config.yaml (legacy fallback)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		filepath.Join(xdgConfig, "ketarin", "config.yaml"),
		filepath.Join(home, ".ketarin", "config.yaml"),
	}, nil
}

// DefaultConfigPath returns the default config file path (XDG standard)
func DefaultConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// FindConfigPath returns the first existing config file path
// Returns the default path if no config file exists yet
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return paths[0], nil
}

// Load reads configuration from the first available config file
func Load() (*Config, error) {
	configPath, err := FindConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// Default returns the configuration written on first use. Jobs and
// downloads live next to the config file.
func Default(configDir string) *Config {
	return &Config{
		Jobs:     JobsConfig{Path: filepath.Join(configDir, "jobs.toml")},
		Download: DownloadConfig{Dir: filepath.Join(configDir, "downloads")},
	}
}

// LoadFrom reads configuration from a specific file path
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default(filepath.Dir(path))
			if saveErr := cfg.SaveTo(path); saveErr != nil {
				return nil, saveErr
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes configuration to the default config file
func (c *Config) Save() error {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes configuration to a specific file path
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetJobsPath returns the jobs file path with ~ expanded
func (c *Config) GetJobsPath() (string, error) {
	if c.Jobs.Path == "" {
		return "", ErrJobsPathNotSet
	}
	return expandHome(c.Jobs.Path)
}

// GetDownloadDir returns the default download directory with ~ expanded,
// or the current directory when unset
func (c *Config) GetDownloadDir() (string, error) {
	if c.Download.Dir == "" {
		return ".", nil
	}
	return expandHome(c.Download.Dir)
}

// GetTimeout returns the request timeout or DefaultTimeout
func (d DownloadConfig) GetTimeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

// GetMaxRetries returns the retry count or DefaultMaxRetries
func (d DownloadConfig) GetMaxRetries() int {
	if d.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return d.MaxRetries
}

// GetAlways returns the update policy; updates run by default
func (u UpdateConfig) GetAlways() bool {
	if u.Always == nil {
		return true
	}
	return *u.Always
}

// GetTimeout returns the match timeout or DefaultMatchTimeout
func (m MatchConfig) GetTimeout() time.Duration {
	if m.Timeout <= 0 {
		return DefaultMatchTimeout
	}
	return m.Timeout
}

// GlobalStore builds a store of literal variables from the globals section.
func (c *Config) GlobalStore() (*variable.Store, error) {
	store := variable.NewStore()
	names := make([]string, 0, len(c.Globals))
	for name := range c.Globals {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := store.Add(variable.NewLiteral(name, c.Globals[name])); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidGlobal, name, err)
		}
	}
	return store, nil
}

func expandHome(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
