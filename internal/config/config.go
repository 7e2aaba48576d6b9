// Package config loads the gpxity configuration: named backends, the
// account file, logging and daemon settings.
//
// Configuration is read from ~/.config/gpxity/config.yaml and then from
// ./gpxity.yaml, the latter overriding the former. Environment variables
// with the GPXITY_ prefix override both, e.g. GPXITY_LOG_FILE or
// GPXITY_DASHBOARD_ADDR.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete configuration.
type Config struct {
	// Accounts is the TOML file holding usernames and passwords.
	Accounts string `yaml:"accounts" mapstructure:"accounts"`

	// LogFile redirects logs into a rotating file when set.
	LogFile string `yaml:"log_file" mapstructure:"log_file"`

	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`

	// Backends maps names usable on the command line to backend settings.
	Backends map[string]BackendConfig `yaml:"backends" mapstructure:"backends"`
}

// DashboardConfig configures the websocket dashboard.
type DashboardConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// WatchConfig configures the mirror daemon.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// BackendConfig describes one named backend.
type BackendConfig struct {
	Kind    string            `yaml:"kind" mapstructure:"kind"`
	Path    string            `yaml:"path" mapstructure:"path"`
	Account string            `yaml:"account" mapstructure:"account"`
	Cleanup bool              `yaml:"cleanup" mapstructure:"cleanup"`
	Options map[string]string `yaml:"options" mapstructure:"options"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Dashboard: DashboardConfig{Addr: "127.0.0.1:8642"},
		Watch:     WatchConfig{Debounce: 500 * time.Millisecond},
		Backends:  make(map[string]BackendConfig),
	}
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.Accounts = filepath.Join(dir, "gpxity", "accounts.toml")
	}
	return cfg
}

// GlobalConfigPath returns the path of the per-user config file.
func GlobalConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gpxity", "config.yaml")
}

// ProjectConfigPath returns the path of the config file in the working
// directory.
func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, "gpxity.yaml")
}

// Load reads the global and the project config file. Missing files are
// fine, broken ones are not.
func Load() (*Config, error) {
	return LoadFiles(GlobalConfigPath(), ProjectConfigPath())
}

// LoadFiles reads paths in order on top of the defaults, then applies the
// environment.
func LoadFiles(paths ...string) (*Config, error) {
	cfg := DefaultConfig()
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := loadFile(path, cfg); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return err
	}

	return v.Unmarshal(cfg)
}

// applyEnv overrides the scalar settings from GPXITY_* variables.
func applyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("GPXITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("accounts", cfg.Accounts)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("dashboard.addr", cfg.Dashboard.Addr)
	v.SetDefault("watch.debounce", cfg.Watch.Debounce)

	cfg.Accounts = v.GetString("accounts")
	cfg.LogFile = v.GetString("log_file")
	cfg.Dashboard.Addr = v.GetString("dashboard.addr")
	cfg.Watch.Debounce = v.GetDuration("watch.debounce")
	return nil
}
