// Package config loads taskdeck configuration from defaults, an optional
// YAML file, and TASKDECK_* environment variables (in increasing
// precedence).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full taskdeck configuration.
type Config struct {
	// DataDir is the directory for the durable local cache and logs.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// RemoteDSN is the path of the shared task database.
	RemoteDSN string `yaml:"remote_dsn" mapstructure:"remote_dsn"`

	// FeedURL is the change feed endpoint, e.g. "ws://localhost:8099".
	// Empty disables the feed subscription.
	FeedURL string `yaml:"feed_url" mapstructure:"feed_url"`

	// ListenAddr is the bind address for the feed server.
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"`

	// InboxDir is the watched directory for dropped task drafts.
	InboxDir string `yaml:"inbox_dir" mapstructure:"inbox_dir"`

	// RefreshAfter is the snapshot age that schedules a background refresh.
	RefreshAfter time.Duration `yaml:"refresh_after" mapstructure:"refresh_after"`

	// StaleAfter is the snapshot age that forces a refresh.
	StaleAfter time.Duration `yaml:"stale_after" mapstructure:"stale_after"`

	// SyncEvery is the periodic sync interval for sessions and the daemon.
	SyncEvery time.Duration `yaml:"sync_every" mapstructure:"sync_every"`

	// ActivityQuiet is how long user activity must be quiet before it
	// triggers a refresh check.
	ActivityQuiet time.Duration `yaml:"activity_quiet" mapstructure:"activity_quiet"`

	// AnthropicModel is the model used by the chat assistant.
	AnthropicModel string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
}

// DefaultConfig returns the default configuration rooted under the user's
// home directory.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".taskdeck")

	return &Config{
		DataDir:        filepath.Join(base, "data"),
		RemoteDSN:      filepath.Join(base, "tasks.db"),
		ListenAddr:     "localhost:8099",
		InboxDir:       filepath.Join(base, "inbox"),
		RefreshAfter:   5 * time.Minute,
		StaleAfter:     60 * time.Second,
		SyncEvery:      30 * time.Second,
		ActivityQuiet:  2 * time.Second,
		AnthropicModel: "claude-sonnet-4-5",
	}
}

// Load reads configuration from path (empty means DefaultPath, missing file
// means defaults) and overlays TASKDECK_* environment variables, e.g.
// TASKDECK_SYNC_EVERY=10s.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("TASKDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults register every key so env overrides apply even when the
	// config file omits (or lacks) them.
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("remote_dsn", cfg.RemoteDSN)
	v.SetDefault("feed_url", cfg.FeedURL)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("inbox_dir", cfg.InboxDir)
	v.SetDefault("refresh_after", cfg.RefreshAfter)
	v.SetDefault("stale_after", cfg.StaleAfter)
	v.SetDefault("sync_every", cfg.SyncEvery)
	v.SetDefault("activity_quiet", cfg.ActivityQuiet)
	v.SetDefault("anthropic_model", cfg.AnthropicModel)

	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.RemoteDSN == "" {
		return fmt.Errorf("remote_dsn cannot be empty")
	}
	if c.RefreshAfter <= 0 {
		return fmt.Errorf("refresh_after must be positive")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale_after must be positive")
	}
	if c.SyncEvery <= 0 {
		return fmt.Errorf("sync_every must be positive")
	}
	return nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".taskdeck", "config.yaml")
}
