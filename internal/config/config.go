// Package config handles configuration loading and management for Loom.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Loom.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Logging LoggingConfig `mapstructure:"logging"`
	TUI     TUIConfig     `mapstructure:"tui"`
	Review  ReviewConfig  `mapstructure:"review"`
}

// StorageConfig selects where the graph and event log live.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `mapstructure:"backend"`
	// Path overrides the database location; empty means the project
	// default (.loom/loom.db).
	Path string `mapstructure:"path"`
}

// StreamConfig holds event stream settings.
type StreamConfig struct {
	// QueueSize bounds each subscriber's outbound queue.
	QueueSize int `mapstructure:"queue_size"`
}

// LoggingConfig holds debug log settings.
type LoggingConfig struct {
	// Debug enables the file-backed debug log.
	Debug bool `mapstructure:"debug"`
	// Path overrides the debug log location.
	Path string `mapstructure:"path"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// ReviewConfig holds review routing settings.
type ReviewConfig struct {
	// RequireHuman forces every review to a human even when an agent
	// approves.
	RequireHuman bool `mapstructure:"require_human"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (LOOM_*)
// 2. Project config (.loom.yaml in current directory or parent)
// 3. User config (~/.config/loom/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("LOOM")
	v.AutomaticEnv()
	v.BindEnv("storage.backend", "LOOM_STORAGE_BACKEND")
	v.BindEnv("storage.path", "LOOM_STORAGE_PATH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("storage.backend", cfg.Storage.Backend)
	v.Set("storage.path", cfg.Storage.Path)
	v.Set("stream.queue_size", cfg.Stream.QueueSize)
	v.Set("logging.debug", cfg.Logging.Debug)
	v.Set("logging.path", cfg.Logging.Path)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())
	v.Set("review.require_human", cfg.Review.RequireHuman)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "")

	v.SetDefault("stream.queue_size", 256)

	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.path", "")

	v.SetDefault("tui.refresh_rate", "100ms")

	v.SetDefault("review.require_human", false)
}

// getUserConfigDir returns the XDG config directory for Loom.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "loom")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "loom")
	}
	return filepath.Join(home, ".config", "loom")
}

// findProjectConfig searches for .loom.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".loom.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Stream: StreamConfig{
			QueueSize: 256,
		},
		Logging: LoggingConfig{},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
