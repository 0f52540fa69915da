// Package config loads pingmon settings from a YAML file, PINGMON_* environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"pingmon/internal/importer"
	"pingmon/internal/probe"
)

// EnvPrefix prefixes environment overrides, e.g. PINGMON_IMPORT_PATH.
const EnvPrefix = "PINGMON"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	History  HistoryConfig  `mapstructure:"history"`
	Import   ImportConfig   `mapstructure:"import"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Output   OutputConfig   `mapstructure:"output"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"` // used by the TUI; headless commands log to stderr
}

type SnapshotConfig struct {
	Path string `mapstructure:"path"`
}

type HistoryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Path          string        `mapstructure:"path"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type ImportConfig struct {
	Path     string        `mapstructure:"path"`
	Sheet    string        `mapstructure:"sheet"`
	Interval time.Duration `mapstructure:"interval"` // 0 disables periodic re-import
}

type ProbeConfig struct {
	Command     string        `mapstructure:"command"`
	Args        []string      `mapstructure:"args"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type OutputConfig struct {
	MaxLines int `mapstructure:"max_lines"`
}

// Options are the command line overrides.
type Options struct {
	ConfigFile string
	DataDir    string
	ConfigDir  string
	CacheDir   string
	LogLevel   string
}

// Load reads the configuration. A missing config file is not an error unless
// it was named explicitly.
func Load(v *viper.Viper, opts Options) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if opts.ConfigDir != "" {
			v.AddConfigPath(opts.ConfigDir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if opts.LogLevel != "" {
		v.Set("log.level", opts.LogLevel)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyDefaults(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("snapshot.path", "")
	v.SetDefault("history.path", "")
	v.SetDefault("import.path", "")
	v.SetDefault("import.sheet", "")
	v.SetDefault("probe.command", "")
	v.SetDefault("probe.args", []string{})
	v.SetDefault("metrics.addr", "")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.retention", 30*24*time.Hour)
	v.SetDefault("history.prune_interval", time.Hour)
	v.SetDefault("import.interval", time.Duration(0))
	v.SetDefault("probe.grace_period", probe.DefaultGracePeriod)
	v.SetDefault("output.max_lines", 1000)
}

// applyDefaults fills paths that depend on the resolved directories.
func (c *Config) applyDefaults(opts Options) {
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = filepath.Join(opts.DataDir, "devices.json")
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(opts.DataDir, "history.db")
	}
	if c.Log.File == "" && opts.CacheDir != "" {
		c.Log.File = filepath.Join(opts.CacheDir, "pingmon.log")
	}
	if c.Import.Path == "" {
		c.Import.Path = filepath.Join(opts.DataDir, "devices.xlsx")
	}
	if c.Probe.Command == "" {
		def := probe.DefaultConfig()
		c.Probe.Command = def.Command
		if len(c.Probe.Args) == 0 {
			c.Probe.Args = def.Args
		}
	}
	if c.Probe.GracePeriod <= 0 {
		c.Probe.GracePeriod = probe.DefaultGracePeriod
	}
	if c.Output.MaxLines <= 0 {
		c.Output.MaxLines = 1000
	}
}

func (c *Config) validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Snapshot.Path == "" {
		return fmt.Errorf("snapshot.path is required")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}
	if c.Import.Interval < 0 {
		return fmt.Errorf("import.interval must not be negative")
	}
	if err := importer.CheckPath(c.Import.Path); err != nil {
		return fmt.Errorf("import.path: %w", err)
	}
	if !hasPlaceholder(c.Probe.Args) {
		return fmt.Errorf("probe.args must contain %s", probe.AddressPlaceholder)
	}
	return nil
}

// ProbeSettings converts the probe section for the probe package.
func (c *Config) ProbeSettings() probe.Config {
	return probe.Config{
		Command:     c.Probe.Command,
		Args:        append([]string(nil), c.Probe.Args...),
		GracePeriod: c.Probe.GracePeriod,
	}
}

func hasPlaceholder(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, probe.AddressPlaceholder) {
			return true
		}
	}
	return false
}
