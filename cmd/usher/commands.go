package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/openautonote/usher/internal/config"
	"github.com/openautonote/usher/internal/launcher"
	"github.com/openautonote/usher/internal/logger"
	"github.com/openautonote/usher/internal/probe"
	"github.com/openautonote/usher/internal/reaper"
	"github.com/openautonote/usher/internal/ui"
	"github.com/openautonote/usher/pkg/client"
	"github.com/openautonote/usher/pkg/template"
)

// exitError carries a specific process exit status through cobra. The
// diagnostic has already been printed when it is returned.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// command bundles the CLI actions; stdout is injected for tests.
type command struct {
	stdout io.Writer
}

// loadConfig resolves and loads the configuration for a command run.
func (c command) loadConfig(gf *GlobalFlags) (config.Config, error) {
	return config.Load(resolveConfigPath(gf.ConfigPath))
}

// resolveConfigPath falls back to usher.toml next to the executable,
// then in the working directory. Missing files mean built-in defaults.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if exe, err := os.Executable(); err == nil {
		cand := filepath.Join(filepath.Dir(exe), "usher.toml")
		if st, err := os.Stat(cand); err == nil && !st.IsDir() {
			return cand
		}
	}
	if st, err := os.Stat("usher.toml"); err == nil && !st.IsDir() {
		return "usher.toml"
	}
	return ""
}

// Launch runs the full startup sequence, fullscreen shell or headless.
func (c command) Launch(gf *GlobalFlags, lf *LaunchFlags) error {
	cfg, err := c.loadConfig(gf)
	if err != nil {
		return err
	}
	applyLaunchFlags(&cfg, lf)
	if cfg.App.Headless {
		return c.runHeadless(cfg)
	}
	return c.runShell(cfg)
}

func applyLaunchFlags(cfg *config.Config, lf *LaunchFlags) {
	if lf.HeadlessSet {
		cfg.App.Headless = lf.Headless
	}
	if lf.PortSet {
		cfg.Backend.Port = lf.Port
	}
	if lf.Backend != "" {
		cfg.Backend.Name = lf.Backend
	}
	if lf.Path != "" {
		cfg.Backend.Path = lf.Path
	}
	if lf.Secret != "" {
		cfg.Backend.Secret = lf.Secret
	}
}

func (c command) runHeadless(cfg config.Config) error {
	slog.SetDefault(logger.NewConsole(os.Stderr, cfg.Level(), false))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := launcher.New(cfg)
	code := l.Run(ctx)
	if diag := l.Diagnostic(); diag != "" {
		_, _ = fmt.Fprintln(os.Stderr, diag)
	}
	if code != 0 {
		return exitError{code}
	}
	return nil
}

func (c command) runShell(cfg config.Config) error {
	// The shell owns the terminal; launcher logs would tear the screen.
	slog.SetDefault(logger.NewConsole(io.Discard, cfg.Level(), false))

	l := launcher.New(cfg)
	p := ui.NewProgram(ui.Options{
		AppName: cfg.App.Name,
		Backend: cfg.Backend.Name,
		Port:    cfg.Backend.Port,
	})
	l.AttachUI(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	codeCh := make(chan int, 1)
	go func() { codeCh <- l.Run(ctx) }()

	uiErr := p.Run()
	cancel()
	code := <-codeCh

	// Printed after the alternate screen is restored, or the message
	// would vanish with it.
	if diag := l.Diagnostic(); diag != "" {
		_, _ = fmt.Fprintln(os.Stderr, diag)
	}
	if uiErr != nil {
		return fmt.Errorf("shell: %w", uiErr)
	}
	if code != 0 {
		return exitError{code}
	}
	return nil
}

// Probe runs a one-off readiness probe against a backend port.
func (c command) Probe(gf *GlobalFlags, pf *ProbeFlags) error {
	cfg, err := c.loadConfig(gf)
	if err != nil {
		return err
	}
	port := pf.Port
	if port == 0 {
		port = cfg.Backend.Port
	}
	if port == 0 {
		return fmt.Errorf("no port to probe; pass --port or configure backend.port")
	}
	interval := pf.Interval
	if interval == 0 {
		interval = cfg.Probe.Interval
	}
	attempts := pf.MaxAttempts
	if attempts == 0 {
		attempts = cfg.Probe.MaxAttempts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	p := &probe.Prober{
		Name:        cfg.Backend.Name,
		Host:        pf.Host,
		Port:        port,
		Interval:    interval,
		MaxAttempts: attempts,
		DialTimeout: cfg.Probe.DialTimeout,
		ReadTimeout: cfg.Probe.ReadTimeout,
	}
	res := p.Run(ctx)
	_, _ = fmt.Fprintf(c.stdout, "%s:%d %s after %d attempt(s) in %s\n",
		p.Host, port, res.State, res.Attempts, res.Elapsed.Round(time.Millisecond))
	if res.State != probe.Ready {
		return exitError{1}
	}
	return nil
}

// Reap terminates stale backend processes left by earlier runs.
func (c command) Reap(gf *GlobalFlags, rf *ReapFlags) error {
	cfg, err := c.loadConfig(gf)
	if err != nil {
		return err
	}
	name := rf.Name
	if name == "" {
		name = cfg.Backend.Name
		if cfg.Backend.Path != "" {
			name = filepath.Base(cfg.Backend.Path)
		}
	}
	port := rf.Port
	if port == 0 {
		port = cfg.Backend.Port
	}
	pidfile := rf.PIDFile
	if pidfile == "" {
		pidfile = cfg.Backend.PIDFile
	}
	var marker []string
	if !rf.All && port > 0 {
		marker = []string{"--port", strconv.Itoa(port)}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	r := reaper.New(reaper.Target{
		Name:    name,
		PIDFile: pidfile,
		Marker:  marker,
		Grace:   cfg.Reaper.Grace,
	})
	n := r.Reap(ctx)
	_, _ = fmt.Fprintf(c.stdout, "terminated %d stale backend process(es)\n", n)
	return nil
}

// Status queries the debug API of a running launcher.
func (c command) Status(gf *GlobalFlags, sf *StatusFlags) error {
	baseURL := sf.APIUrl
	if baseURL == "" {
		cfg, err := c.loadConfig(gf)
		if err != nil {
			return err
		}
		if cfg.Debug.Listen == "" {
			return fmt.Errorf("no debug API configured; pass --api-url or set debug.listen")
		}
		baseURL = "http://" + cfg.Debug.Listen
	}
	cl := client.New(client.Config{BaseURL: baseURL, Timeout: sf.APITimeout})
	ctx, cancel := context.WithTimeout(context.Background(), sf.APITimeout+time.Second)
	defer cancel()

	if sf.Usage {
		u, err := cl.Usage(ctx)
		if err != nil {
			return err
		}
		return c.printJSON(u)
	}
	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	if sf.JSON {
		return c.printJSON(st)
	}
	_, _ = fmt.Fprintf(c.stdout, "app:      %s\n", st.App)
	_, _ = fmt.Fprintf(c.stdout, "backend:  %s pid=%d port=%d running=%v\n",
		st.Backend.Name, st.Backend.PID, st.Backend.Port, st.Backend.Running)
	_, _ = fmt.Fprintf(c.stdout, "probe:    %s attempts=%d elapsed=%.1fs\n",
		st.Probe.State, st.Probe.Attempts, st.Probe.ElapsedSeconds)
	_, _ = fmt.Fprintf(c.stdout, "restarts: %d\n", st.Restarts)
	return nil
}

func (c command) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Init writes a starter usher.toml for a profile.
func (c command) Init(inf *InitFlags) error {
	data, err := template.RenderTOML(template.Profile(inf.Profile), template.Options{
		Backend: inf.Backend,
		Port:    inf.Port,
	})
	if err != nil {
		return err
	}
	if inf.Output == "" || inf.Output == "-" {
		_, err = c.stdout.Write(data)
		return err
	}
	if _, err := os.Stat(inf.Output); err == nil && !inf.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", inf.Output)
	}
	if err := os.WriteFile(inf.Output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", inf.Output, err)
	}
	_, _ = fmt.Fprintf(c.stdout, "wrote %s (%s profile)\n", inf.Output, inf.Profile)
	return nil
}
