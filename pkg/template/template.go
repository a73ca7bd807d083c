package template

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Profile selects a starter configuration flavor.
type Profile string

const (
	// ProfileDesktop is the shipped-bundle setup: fixed port, stale
	// process reaping, rotating backend log files.
	ProfileDesktop Profile = "desktop"
	// ProfileDev targets local development: ephemeral port, autorestart,
	// debug API, verbose logging.
	ProfileDev Profile = "dev"
	// ProfileHeadless runs without the fullscreen shell and records the
	// launch history to a local sqlite file.
	ProfileHeadless Profile = "headless"
)

// Options tune the generated configuration.
type Options struct {
	Backend string // backend executable name; empty keeps the default
	Port    int    // fixed port override; 0 keeps the profile's choice
}

// Template is a starter usher.toml. Durations are rendered as strings
// so the generated file stays readable and round-trips through the
// config loader.
type Template struct {
	App     AppSection      `toml:"app"`
	Backend BackendSection  `toml:"backend"`
	Reaper  ReaperSection   `toml:"reaper"`
	Probe   ProbeSection    `toml:"probe"`
	Drain   DrainSection    `toml:"drain"`
	Log     *LogSection     `toml:"log,omitempty"`
	History *HistorySection `toml:"history,omitempty"`
	Debug   *DebugSection   `toml:"debug,omitempty"`
}

type AppSection struct {
	Name     string `toml:"name"`
	Headless bool   `toml:"headless,omitempty"`
	LogLevel string `toml:"log_level"`
}

type BackendSection struct {
	Name            string `toml:"name"`
	Port            int    `toml:"port"`
	AutoRestart     bool   `toml:"autorestart,omitempty"`
	RestartInterval string `toml:"restart_interval,omitempty"`
	MaxRestarts     int    `toml:"max_restarts,omitempty"`
	StopTimeout     string `toml:"stop_timeout"`
}

type ReaperSection struct {
	Enabled     bool   `toml:"enabled"`
	MarkerScope bool   `toml:"marker_scope"`
	Grace       string `toml:"grace"`
}

type ProbeSection struct {
	Interval    string `toml:"interval"`
	MaxAttempts int    `toml:"max_attempts"`
	DialTimeout string `toml:"dial_timeout"`
	ReadTimeout string `toml:"read_timeout"`
}

type DrainSection struct {
	StdoutPrefix string `toml:"stdout_prefix"`
	StderrPrefix string `toml:"stderr_prefix"`
}

type LogSection struct {
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type HistorySection struct {
	DSN string `toml:"dsn"`
}

type DebugSection struct {
	Listen string `toml:"listen"`
}

// Generate builds the starter configuration for a profile.
func Generate(p Profile, opts Options) (Template, error) {
	backend := opts.Backend
	if backend == "" {
		backend = "api-server"
	}
	base := Template{
		App: AppSection{Name: "OpenAutoNote", LogLevel: "info"},
		Backend: BackendSection{
			Name:        backend,
			Port:        8964,
			StopTimeout: "5s",
		},
		Reaper: ReaperSection{Enabled: true, MarkerScope: true, Grace: "500ms"},
		Probe: ProbeSection{
			Interval:    "500ms",
			MaxAttempts: 60,
			DialTimeout: "1s",
			ReadTimeout: "2s",
		},
		Drain: DrainSection{StdoutPrefix: "[api]", StderrPrefix: "[api err]"},
	}

	switch p {
	case ProfileDesktop:
		base.Log = &LogSection{Dir: "logs", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7}
	case ProfileDev:
		base.App.LogLevel = "debug"
		base.Backend.Port = 0
		base.Backend.AutoRestart = true
		base.Backend.RestartInterval = "2s"
		base.Backend.MaxRestarts = 3
		base.Debug = &DebugSection{Listen: "127.0.0.1:7878"}
	case ProfileHeadless:
		base.App.Headless = true
		base.Log = &LogSection{Dir: "logs", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7}
		base.History = &HistorySection{DSN: "sqlite://usher-history.db"}
	default:
		return Template{}, fmt.Errorf("unknown profile: %s (supported: desktop, dev, headless)", p)
	}

	if opts.Port > 0 {
		base.Backend.Port = opts.Port
	}
	return base, nil
}

// RenderTOML returns the starter configuration as a TOML document.
func RenderTOML(p Profile, opts Options) ([]byte, error) {
	cfg, err := Generate(p, opts)
	if err != nil {
		return nil, err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# usher.toml generated for the " + string(p) + " profile\n\n")
	return append(header, data...), nil
}

// SupportedProfiles lists the profiles Generate accepts.
func SupportedProfiles() []string {
	return []string{string(ProfileDesktop), string(ProfileDev), string(ProfileHeadless)}
}
