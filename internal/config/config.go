// Package config provides configuration types and defaults for dockswap.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/tracing"
)

// Config holds all configuration options for dockswap.
type Config struct {
	// DataDir holds the database, logs and traces. Empty means the per-user
	// data directory.
	DataDir string `mapstructure:"data_dir"`

	// Database is the SQLite file, relative to DataDir unless absolute.
	Database string `mapstructure:"database"`

	// PollInterval paces the monitor and process watcher loops.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	States StatesConfig `mapstructure:"states"`
	Signal SignalConfig `mapstructure:"signal"`

	// ProcessExitCapture is "opposite" (default) or "current".
	ProcessExitCapture string `mapstructure:"process_exit_capture"`

	// ConflictPolicy is "prompt", "keep-stored" or "keep-live".
	ConflictPolicy string `mapstructure:"conflict_policy"`

	// Notifications prints sync notifications while the daemon runs.
	Notifications bool `mapstructure:"notifications"`

	// DriftDebounce is the quiet period before a changed live file is
	// checked for drift.
	DriftDebounce time.Duration `mapstructure:"drift_debounce"`

	Log     LogConfig       `mapstructure:"log"`
	Tracing tracing.Config  `mapstructure:"tracing"`
	Flags   map[string]bool `mapstructure:"flags"`
}

// StatesConfig names the two environment states.
type StatesConfig struct {
	A string `mapstructure:"a"` // signal off
	B string `mapstructure:"b"` // signal on
}

// SignalConfig selects where the environment signal comes from.
type SignalConfig struct {
	// Source is "gpu" (display adapter count) or "file".
	Source string `mapstructure:"source"`

	// InternalControllers is the adapter count when undocked.
	InternalControllers int `mapstructure:"internal_controllers"`

	// FilePath is read by the "file" source.
	FilePath string `mapstructure:"file_path"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	Path       string `mapstructure:"path"` // relative to data_dir unless absolute
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

const (
	SignalSourceGPU  = "gpu"
	SignalSourceFile = "file"

	ConflictPrompt     = "prompt"
	ConflictKeepStored = "keep-stored"
	ConflictKeepLive   = "keep-live"

	DefaultDatabase = "dockswap.db"
	DefaultLogFile  = "dockswap.log"
	DefaultTraces   = "traces/traces.jsonl"
)

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Database:           DefaultDatabase,
		PollInterval:       time.Second,
		States:             StatesConfig{A: "undocked", B: "docked"},
		Signal:             SignalConfig{Source: SignalSourceGPU, InternalControllers: 1},
		ProcessExitCapture: "opposite",
		ConflictPolicy:     ConflictPrompt,
		Notifications:      true,
		DriftDebounce:      2 * time.Second,
		Log: LogConfig{
			Path:       DefaultLogFile,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if err := ValidateStates(c.States); err != nil {
		return err
	}
	if err := ValidateSignal(c.Signal); err != nil {
		return err
	}
	switch c.ProcessExitCapture {
	case "", "opposite", "current":
	default:
		return fmt.Errorf("process_exit_capture must be \"opposite\" or \"current\", got %q", c.ProcessExitCapture)
	}
	switch c.ConflictPolicy {
	case "", ConflictPrompt, ConflictKeepStored, ConflictKeepLive:
	default:
		return fmt.Errorf("conflict_policy must be %q, %q or %q, got %q",
			ConflictPrompt, ConflictKeepStored, ConflictKeepLive, c.ConflictPolicy)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateStates checks that both state names are set and distinct.
func ValidateStates(s StatesConfig) error {
	if s.A == "" || s.B == "" {
		return fmt.Errorf("states.a and states.b are required")
	}
	if s.A == s.B {
		return fmt.Errorf("states.a and states.b must differ, both are %q", s.A)
	}
	return nil
}

// ValidateSignal checks the signal source settings.
func ValidateSignal(s SignalConfig) error {
	switch s.Source {
	case "", SignalSourceGPU:
		if s.InternalControllers < 0 {
			return fmt.Errorf("signal.internal_controllers must not be negative")
		}
	case SignalSourceFile:
		if s.FilePath == "" {
			return fmt.Errorf("signal.file_path is required when signal.source is \"file\"")
		}
	default:
		return fmt.Errorf("signal.source must be \"gpu\" or \"file\", got %q", s.Source)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}
	if t.Exporter != "" {
		switch t.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}
	if t.Enabled && t.Exporter == "otlp" && t.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c Config) LogLevel() log.Level {
	return log.ParseLevel(c.Log.Level)
}

// DefaultConfigPath returns ~/.config/dockswap/config.yaml, or "" when the
// home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "dockswap", "config.yaml")
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# dockswap configuration

# Where the database, log and traces live (default: per-user data dir)
# data_dir: ~/.local/share/dockswap
database: dockswap.db

# How often the signal and the process list are polled
poll_interval: 1s

# Names of the two environment states; a is used while the signal is off
states:
  a: undocked
  b: docked

# Environment signal
signal:
  source: gpu               # "gpu" counts display adapters, "file" reads signal.file_path
  internal_controllers: 1   # adapters present when undocked
  # file_path: /run/dockswap/state

# State a title's settings are captured into when it exits: "opposite" or "current"
process_exit_capture: opposite

# What to do when live settings drifted from the stored snapshot:
# "prompt" (asks on a terminal, keeps stored otherwise), "keep-stored", "keep-live"
conflict_policy: prompt

# Print "settings have been updated" notifications while running
notifications: true

# Quiet period before an edited settings file is checked (drift-watch flag)
drift_debounce: 2s

log:
  path: dockswap.log
  level: info
  max_size_mb: 10
  max_backups: 3

# OpenTelemetry tracing of syncs and transitions
tracing:
  enabled: false
  exporter: file            # none, file, stdout, otlp
  # file_path: traces/traces.jsonl
  # otlp_endpoint: localhost:4317
  sample_rate: 1.0

# Feature flags
flags:
  process-watcher: true
  drift-watch: false
  seed-on-add: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
