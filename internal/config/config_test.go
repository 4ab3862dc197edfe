package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DataDir == "" {
		t.Error("expected a default data dir")
	}
	if cfg.RefreshAfter != 5*time.Minute {
		t.Errorf("expected refresh_after 5m, got %v", cfg.RefreshAfter)
	}
	if cfg.StaleAfter != 60*time.Second {
		t.Errorf("expected stale_after 60s, got %v", cfg.StaleAfter)
	}
	if cfg.SyncEvery != 30*time.Second {
		t.Errorf("expected sync_every 30s, got %v", cfg.SyncEvery)
	}
	if cfg.FeedURL != "" {
		t.Errorf("feed should be disabled by default, got %q", cfg.FeedURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SyncEvery != 30*time.Second {
		t.Errorf("expected default sync_every, got %v", cfg.SyncEvery)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "sync_every: 10s\nfeed_url: ws://localhost:9200\ndata_dir: /tmp/taskdeck\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SyncEvery != 10*time.Second {
		t.Errorf("expected sync_every 10s, got %v", cfg.SyncEvery)
	}
	if cfg.FeedURL != "ws://localhost:9200" {
		t.Errorf("expected feed_url override, got %q", cfg.FeedURL)
	}
	if cfg.DataDir != "/tmp/taskdeck" {
		t.Errorf("expected data_dir override, got %q", cfg.DataDir)
	}
	// Untouched keys keep their defaults.
	if cfg.RefreshAfter != 5*time.Minute {
		t.Errorf("expected default refresh_after, got %v", cfg.RefreshAfter)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync_every: 10s\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("TASKDECK_SYNC_EVERY", "3s")
	t.Setenv("TASKDECK_ANTHROPIC_MODEL", "claude-haiku-4-5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SyncEvery != 3*time.Second {
		t.Errorf("env must beat file, got %v", cfg.SyncEvery)
	}
	if cfg.AnthropicModel != "claude-haiku-4-5" {
		t.Errorf("expected model from env, got %q", cfg.AnthropicModel)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("stale_after: -5s\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for negative stale_after")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync_every: [unclosed\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config file")
	}
}
