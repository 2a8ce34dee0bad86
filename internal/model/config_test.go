package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Scheduler.FullCheckIntervalSec != 300 {
		t.Errorf("full_check_interval = %d", cfg.Scheduler.FullCheckIntervalSec)
	}
	if cfg.Scheduler.MaxRunners != 5 {
		t.Errorf("max_runners = %d", cfg.Scheduler.MaxRunners)
	}
	if cfg.Scheduler.MonitoringQuery != "!" {
		t.Errorf("monitoring_query = %q", cfg.Scheduler.MonitoringQuery)
	}
	if cfg.Scheduler.ZombieTimeoutSec != 7200 {
		t.Errorf("zombie_timeout = %d", cfg.Scheduler.ZombieTimeoutSec)
	}
	if !cfg.KeepEntriesOnRestore() {
		t.Error("keep_entries should default to true")
	}
	if cfg.Notifications.Enabled {
		t.Error("notifications should default off")
	}
	if cfg.Daemon.ShutdownTimeoutSec != 30 {
		t.Errorf("shutdown_timeout_sec = %d", cfg.Daemon.ShutdownTimeoutSec)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Scheduler.FullCheckIntervalSec != 300 {
		t.Errorf("defaults not applied: %+v", cfg.Scheduler)
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `scheduler:
  max_runners: 2
  monitoring_query: "! OR *"
restore:
  keep_entries: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Scheduler.MaxRunners != 2 {
		t.Errorf("max_runners = %d, want 2", cfg.Scheduler.MaxRunners)
	}
	if cfg.Scheduler.MonitoringQuery != "! OR *" {
		t.Errorf("monitoring_query = %q", cfg.Scheduler.MonitoringQuery)
	}
	// Unset keys keep their defaults.
	if cfg.Scheduler.FullCheckIntervalSec != 300 {
		t.Errorf("full_check_interval = %d, want default 300", cfg.Scheduler.FullCheckIntervalSec)
	}
	if cfg.KeepEntriesOnRestore() {
		t.Error("keep_entries: false not honored")
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scheduler: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed config should error")
	}
}
