package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/openautonote/usher/internal/logger"
	"github.com/spf13/viper"
)

// Defaults match the OpenAutoNote desktop bundle this launcher ships with.
const (
	DefaultBackendName = "api-server"
	DefaultPort        = 8964
	DefaultInterval    = 500 * time.Millisecond
	DefaultMaxAttempts = 60
)

// Config is the top-level TOML structure (usher.toml).
type Config struct {
	App     AppConfig     `toml:"app" mapstructure:"app"`
	Backend BackendConfig `toml:"backend" mapstructure:"backend"`
	Reaper  ReaperConfig  `toml:"reaper" mapstructure:"reaper"`
	Probe   ProbeConfig   `toml:"probe" mapstructure:"probe"`
	Drain   DrainConfig   `toml:"drain" mapstructure:"drain"`
	Log     *LogConfig    `toml:"log" mapstructure:"log"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Debug   DebugConfig   `toml:"debug" mapstructure:"debug"`
}

type AppConfig struct {
	Name     string `toml:"name" mapstructure:"name"`
	Headless bool   `toml:"headless" mapstructure:"headless"`
	LogLevel string `toml:"log_level" mapstructure:"log_level"`
}

type BackendConfig struct {
	Name            string        `toml:"name" mapstructure:"name"`
	Path            string        `toml:"path" mapstructure:"path"`
	Port            int           `toml:"port" mapstructure:"port"`
	Secret          string        `toml:"secret" mapstructure:"secret"`
	Args            []string      `toml:"args" mapstructure:"args"`
	WorkDir         string        `toml:"workdir" mapstructure:"workdir"`
	Env             []string      `toml:"env" mapstructure:"env"`
	PIDFile         string        `toml:"pidfile" mapstructure:"pidfile"`
	AutoRestart     bool          `toml:"autorestart" mapstructure:"autorestart"`
	RestartInterval time.Duration `toml:"restart_interval" mapstructure:"restart_interval"`
	MaxRestarts     int           `toml:"max_restarts" mapstructure:"max_restarts"`
	StopTimeout     time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
}

type ReaperConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
	// MarkerScope restricts name matches to processes whose command line
	// carries the --port <port> marker; turning it off restores the broad
	// name-only match.
	MarkerScope bool          `toml:"marker_scope" mapstructure:"marker_scope"`
	Grace       time.Duration `toml:"grace" mapstructure:"grace"`
}

type ProbeConfig struct {
	Interval    time.Duration `toml:"interval" mapstructure:"interval"`
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
	DialTimeout time.Duration `toml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout time.Duration `toml:"read_timeout" mapstructure:"read_timeout"`
}

type DrainConfig struct {
	StdoutPrefix string `toml:"stdout_prefix" mapstructure:"stdout_prefix"`
	StderrPrefix string `toml:"stderr_prefix" mapstructure:"stderr_prefix"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type DebugConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		App: AppConfig{Name: "OpenAutoNote", LogLevel: "info"},
		Backend: BackendConfig{
			Name:            DefaultBackendName,
			Port:            DefaultPort,
			RestartInterval: 2 * time.Second,
			MaxRestarts:     3,
			StopTimeout:     5 * time.Second,
		},
		Reaper: ReaperConfig{Enabled: true, MarkerScope: true, Grace: 500 * time.Millisecond},
		Probe: ProbeConfig{
			Interval:    DefaultInterval,
			MaxAttempts: DefaultMaxAttempts,
			DialTimeout: time.Second,
			ReadTimeout: 2 * time.Second,
		},
		Drain: DrainConfig{StdoutPrefix: "[api]", StderrPrefix: "[api err]"},
	}
}

// Load reads a TOML config file and applies defaults and validation.
// An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDerived fills values that depend on other fields.
func (c *Config) applyDerived() {
	if c.Backend.PIDFile == "" && c.Log != nil && c.Log.Dir != "" {
		c.Backend.PIDFile = filepath.Join(c.Log.Dir, c.Backend.Name+".pid")
	}
}

// Validate checks the loaded values; it does not touch the filesystem.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.Name) == "" && c.Backend.Path == "" {
		return fmt.Errorf("backend name or path is required")
	}
	if c.Backend.Port < 0 || c.Backend.Port > 65535 {
		return fmt.Errorf("backend port %d out of range", c.Backend.Port)
	}
	if c.Probe.Interval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %s", c.Probe.Interval)
	}
	if c.Probe.MaxAttempts <= 0 {
		return fmt.Errorf("probe max_attempts must be positive, got %d", c.Probe.MaxAttempts)
	}
	if c.Drain.StdoutPrefix == c.Drain.StderrPrefix {
		return fmt.Errorf("drain stdout_prefix and stderr_prefix must differ")
	}
	if c.Backend.StopTimeout <= 0 {
		return fmt.Errorf("backend stop_timeout must be positive, got %s", c.Backend.StopTimeout)
	}
	if c.Backend.AutoRestart {
		if c.Backend.RestartInterval <= 0 {
			return fmt.Errorf("backend restart_interval must be positive when autorestart is on")
		}
		if c.Backend.MaxRestarts <= 0 {
			return fmt.Errorf("backend max_restarts must be positive when autorestart is on")
		}
	}
	return nil
}

// LoggerConfig converts the optional [log] section into the writer config
// used for backend output files. A nil section disables file logging.
func (c *Config) LoggerConfig() logger.Config {
	if c.Log == nil {
		return logger.Config{}
	}
	return logger.Config{
		Dir:        c.Log.Dir,
		StdoutPath: c.Log.Stdout,
		StderrPath: c.Log.Stderr,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// Level parses app.log_level; unknown values fall back to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.App.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
