package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/dockswap/internal/app"
	"github.com/zjrosen/dockswap/internal/config"
	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/paths"
)

const (
	envPrefix      = "DOCKSWAP"
	localConfigDir = ".dockswap"
	configName     = "config.yaml"
)

var (
	version     = "dev"
	cfgFile     string
	verbose     bool
	cfg         config.Config
	cfgLoadErr  error
	configPath  string
	stopLogging func()
)

var rootCmd = &cobra.Command{
	Use:   "dockswap",
	Short: "Keep per-application settings in sync with the docking state",
	Long: `dockswap keeps one snapshot of each registered title's settings per
environment state (undocked and docked by default) and swaps them whenever
the state changes.

Run "dockswap run" to start the background monitor, and "dockswap titles"
to manage the titles it keeps in sync.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) {
		if stopLogging != nil {
			stopLogging()
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/dockswap/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log to stderr instead of the log file")
	rootCmd.PersistentFlags().String("data-dir", "",
		"directory holding the database and logs")

	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

func initConfig() {
	home, _ := os.UserHomeDir()
	workDir, _ := os.Getwd()
	cfg, configPath, cfgLoadErr = loadConfig(viper.GetViper(), cfgFile, workDir, home)
}

// loadConfig reads configuration into a Config. Lookup order:
//  1. explicit path (--config)
//  2. .dockswap/config.yaml in the working directory
//  3. ~/.config/dockswap/config.yaml
//
// When no file exists a commented default is written to the user path.
// Environment variables prefixed DOCKSWAP_ override file values.
func loadConfig(v *viper.Viper, explicit, workDir, home string) (config.Config, string, error) {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	userPath := ""
	if home != "" {
		userPath = filepath.Join(home, ".config", "dockswap", configName)
	}

	path := explicit
	if path == "" {
		local := filepath.Join(workDir, localConfigDir, configName)
		switch {
		case fileExists(local):
			path = local
		case userPath != "" && fileExists(userPath):
			path = userPath
		case userPath != "":
			if err := config.WriteDefaultConfig(userPath); err == nil {
				path = userPath
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if explicit != "" || !errors.As(err, &notFound) {
				return config.Defaults(), path, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	out := config.Defaults()
	if err := v.Unmarshal(&out); err != nil {
		return config.Defaults(), path, fmt.Errorf("decoding config: %w", err)
	}
	if path == "" {
		path = userPath
	}
	return out, path, nil
}

func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("database", d.Database)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("states.a", d.States.A)
	v.SetDefault("states.b", d.States.B)
	v.SetDefault("signal.source", d.Signal.Source)
	v.SetDefault("signal.internal_controllers", d.Signal.InternalControllers)
	v.SetDefault("signal.file_path", d.Signal.FilePath)
	v.SetDefault("process_exit_capture", d.ProcessExitCapture)
	v.SetDefault("conflict_policy", d.ConflictPolicy)
	v.SetDefault("notifications", d.Notifications)
	v.SetDefault("drift_debounce", d.DriftDebounce)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func setupLogging(*cobra.Command, []string) error {
	if cfgLoadErr != nil {
		return cfgLoadErr
	}
	if verbose {
		log.InitWriter(os.Stderr, log.LevelDebug)
		return nil
	}
	logPath := paths.Resolve(paths.DataDir(cfg.DataDir), cfg.Log.Path, config.DefaultLogFile)
	cleanup, err := log.Init(log.Options{
		Path:       logPath,
		Level:      cfg.LogLevel(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	stopLogging = cleanup
	log.Debug(log.CatConfig, "Configuration loaded", "path", configPath, "version", version)
	return nil
}

// openServices opens the database and registry for a command. Callers
// close the result.
func openServices() (*app.Services, error) {
	return app.Open(cfg)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
