package model

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"
)

// Config is the daemon configuration loaded from .axe/config.yaml.
// The core consumes it; the CLI owns loading and defaulting.
type Config struct {
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Commands      CommandsConfig      `yaml:"commands"`
	Restore       RestoreConfig       `yaml:"restore"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Daemon        DaemonConfig        `yaml:"daemon"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type SchedulerConfig struct {
	FullCheckIntervalSec   int    `yaml:"full_check_interval"`
	HookCheckIntervalSec   int    `yaml:"hook_check_interval"`
	ZombieCheckIntervalSec int    `yaml:"zombie_check_interval"`
	MaxRunners             int    `yaml:"max_runners"`
	MonitoringQuery        string `yaml:"monitoring_query"`
	ZombieTimeoutSec       int    `yaml:"zombie_timeout"`
}

// CommandsConfig holds the argv templates for the external collaborator
// boundaries. {name} expands to the ChangeSpec name, {entry} to the
// entry text. Empty template → that task type is not scheduled.
type CommandsConfig struct {
	StatusCheck []string `yaml:"status_check"`
	CommentPoll []string `yaml:"comment_poll"`
	Mentor      []string `yaml:"mentor"`
}

type RestoreConfig struct {
	// KeepEntries controls whether restore preserves accumulated
	// sub-entries. Defaults to true (preserve).
	KeepEntries *bool `yaml:"keep_entries"`
}

type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the documented defaults. File values are
// unmarshaled over it, so omitted keys keep their default.
func DefaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			FullCheckIntervalSec:   300,
			HookCheckIntervalSec:   1,
			ZombieCheckIntervalSec: 60,
			MaxRunners:             5,
			MonitoringQuery:        "!",
			ZombieTimeoutSec:       7200,
		},
		Daemon:  DaemonConfig{ShutdownTimeoutSec: 30},
		Logging: LoggingConfig{Level: "info"},
	}
}

// KeepEntriesOnRestore resolves the restore.keep_entries choice.
func (c Config) KeepEntriesOnRestore() bool {
	if c.Restore.KeepEntries == nil {
		return true
	}
	return *c.Restore.KeepEntries
}

// LoadConfig reads path over the defaults. A missing file is not an
// error: the defaults are the configuration.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
