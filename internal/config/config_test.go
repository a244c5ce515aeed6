package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/dockswap/internal/log"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, time.Second, cfg.PollInterval)
	require.Equal(t, "undocked", cfg.States.A)
	require.Equal(t, "opposite", cfg.ProcessExitCapture)
	require.Equal(t, log.LevelInfo, cfg.LogLevel())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero interval", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"same states", func(c *Config) { c.States.B = c.States.A }, "must differ"},
		{"missing state", func(c *Config) { c.States.A = "" }, "required"},
		{"unknown signal", func(c *Config) { c.Signal.Source = "bluetooth" }, "signal.source"},
		{"file signal without path", func(c *Config) { c.Signal.Source = SignalSourceFile }, "file_path"},
		{"bad exit policy", func(c *Config) { c.ProcessExitCapture = "both" }, "process_exit_capture"},
		{"bad conflict policy", func(c *Config) { c.ConflictPolicy = "merge" }, "conflict_policy"},
		{"bad sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "sample_rate"},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "exporter"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OTLPEndpoint = ""
		}, "otlp_endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg := Defaults()
	require.NoError(t, v.Unmarshal(&cfg))
	require.NoError(t, cfg.Validate())

	def := Defaults()
	require.Equal(t, def.PollInterval, cfg.PollInterval)
	require.Equal(t, def.States, cfg.States)
	require.Equal(t, def.Signal, cfg.Signal)
	require.Equal(t, def.DriftDebounce, cfg.DriftDebounce)
	require.Equal(t, def.Log, cfg.Log)
	require.True(t, cfg.Flags["process-watcher"])
	require.False(t, cfg.Flags["drift-watch"])
}

func TestWriteDefaultConfig_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
