package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openautonote/usher/internal/config"
	"github.com/openautonote/usher/internal/history"
	"github.com/openautonote/usher/internal/history/factory"
	"github.com/openautonote/usher/internal/metrics"
	"github.com/openautonote/usher/internal/probe"
	"github.com/openautonote/usher/internal/reaper"
	"github.com/openautonote/usher/internal/server"
	"github.com/openautonote/usher/internal/sidecar"
	"github.com/openautonote/usher/internal/ui"
)

// Exit statuses of the whole application.
const (
	ExitOK              = 0 // user closed the application
	ExitReadinessFailed = 1 // backend never became ready, or died before ready
	ExitSpawnFailed     = 2 // environment error: executable missing or spawn refused
)

const broadcastTimeout = 3 * time.Second

// Launcher owns one application run: reap stale backends, spawn the
// backend, drain its output, gate the UI on readiness, and shut
// everything down with a deterministic exit status. The first terminal
// event (readiness failure, spawn abort, or user close) decides the
// status; later ones are ignored.
type Launcher struct {
	cfg config.Config

	coord   *ui.Coordinator
	program *ui.Program
	console io.Writer
	onLine  func(errStream bool, line string)

	sinks []history.Sink
	usage *metrics.UsageCollector

	exitOnce sync.Once
	exitCode atomic.Int32

	mu            sync.Mutex
	port          int
	startedAt     time.Time
	restarts      int
	probeState    probe.State
	probeAttempts int
	probeElapsed  time.Duration
	proc          *sidecar.Process
	lastStatus    sidecar.Status
	diagnostic    string
}

// New builds a headless launcher; AttachUI switches it to the
// fullscreen shell.
func New(cfg config.Config) *Launcher {
	return &Launcher{
		cfg:        cfg,
		coord:      &ui.Coordinator{},
		console:    os.Stdout,
		probeState: probe.Probing,
	}
}

// AttachUI binds the launcher to the fullscreen shell: the coordinator
// drives the program's surfaces, backend output feeds the shell instead
// of the console the shell now owns, and failure diagnostics become
// shell messages.
func (l *Launcher) AttachUI(p *ui.Program) {
	l.program = p
	l.coord = &ui.Coordinator{
		Splash: p.Splash(),
		Main:   p.Main(),
		OnFailure: func(msg string) {
			p.Send(ui.FailedMsg{Detail: msg})
		},
	}
	l.console = io.Discard
	l.onLine = func(errStream bool, line string) {
		p.Send(ui.LogLineMsg{Err: errStream, Line: line})
	}
}

// AddSink registers an extra history sink alongside any configured DSN
// sink. Call before Run; the launcher closes every sink when Run
// returns.
func (l *Launcher) AddSink(s history.Sink) {
	l.sinks = append(l.sinks, s)
}

// Status reports the live launch state for the debug API.
func (l *Launcher) Status() server.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := server.Status{
		App:       l.cfg.App.Name,
		StartedAt: l.startedAt,
		Restarts:  l.restarts,
		Probe: server.ProbeStatus{
			State:          l.probeState.String(),
			Attempts:       l.probeAttempts,
			ElapsedSeconds: l.probeElapsed.Seconds(),
		},
	}
	if l.proc != nil {
		st.Backend = l.proc.Snapshot()
	} else {
		st.Backend = l.lastStatus
	}
	return st
}

// Diagnostic returns the fatal-failure message, if any. The command
// layer prints it after the fullscreen shell releases the terminal.
func (l *Launcher) Diagnostic() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.diagnostic
}

func (l *Launcher) setExit(code int) {
	l.exitOnce.Do(func() { l.exitCode.Store(int32(code)) })
}

func (l *Launcher) exit() int {
	return int(l.exitCode.Load())
}

func (l *Launcher) setDiagnostic(msg string) {
	l.mu.Lock()
	if l.diagnostic == "" {
		l.diagnostic = msg
	}
	l.mu.Unlock()
}

func (l *Launcher) setProbe(res probe.Result) {
	l.mu.Lock()
	l.probeState = res.State
	l.probeAttempts = res.Attempts
	l.probeElapsed = res.Elapsed
	l.mu.Unlock()
}

func (l *Launcher) setProc(p *sidecar.Process) {
	l.mu.Lock()
	if p == nil && l.proc != nil {
		l.lastStatus = l.proc.Snapshot()
	}
	l.proc = p
	l.mu.Unlock()
}

// event builds the skeleton of a history record for this launch.
func (l *Launcher) event(t history.EventType) history.Event {
	l.mu.Lock()
	port := l.port
	l.mu.Unlock()
	return history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Name:       l.cfg.Backend.Name,
		Port:       port,
	}
}

func (l *Launcher) broadcast(e history.Event) {
	if len(l.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()
	history.Broadcast(ctx, l.sinks, e)
}

// openSinks builds history sinks from the configured DSN. A broken
// sink degrades to a warning; the launch itself must not depend on an
// audit backend being reachable.
func (l *Launcher) openSinks() {
	dsn := l.cfg.History.DSN
	if dsn == "" {
		return
	}
	sink, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		slog.Warn("history sink unavailable", "dsn", dsn, "error", err)
		return
	}
	l.sinks = append(l.sinks, sink)
}

func (l *Launcher) closeSinks() {
	for _, s := range l.sinks {
		if closer, ok := s.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	l.sinks = nil
}

// resolvePort returns the configured port, or grabs an ephemeral one
// when the configuration asks for port 0.
func resolvePort(configured int) (int, error) {
	if configured != 0 {
		return configured, nil
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("pick ephemeral port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port, nil
}

// reap clears stale backends from a previous run. When the configured
// port is fixed, the marker scopes name matches to our exact port;
// with an ephemeral port the stale instance bound an unknown port, so
// the marker degrades to the --port token alone.
func (l *Launcher) reap(ctx context.Context, port int) {
	rc := l.cfg.Reaper
	if !rc.Enabled {
		return
	}
	name := l.cfg.Backend.Name
	if l.cfg.Backend.Path != "" {
		name = filepath.Base(l.cfg.Backend.Path)
	}
	var marker []string
	if rc.MarkerScope {
		if l.cfg.Backend.Port == 0 {
			marker = []string{"--port"}
		} else {
			marker = []string{"--port", strconv.Itoa(port)}
		}
	}
	r := reaper.New(reaper.Target{
		Name:    name,
		PIDFile: l.cfg.Backend.PIDFile,
		Marker:  marker,
		Grace:   rc.Grace,
	})
	if n := r.Reap(ctx); n > 0 {
		metrics.AddReaped(l.cfg.Backend.Name, n)
	}
}

func (l *Launcher) spawnSpec() sidecar.Spec {
	b := l.cfg.Backend
	return sidecar.Spec{
		Name:        b.Name,
		Path:        b.Path,
		Secret:      b.Secret,
		Args:        b.Args,
		WorkDir:     b.WorkDir,
		Env:         b.Env,
		PIDFile:     b.PIDFile,
		StopTimeout: b.StopTimeout,
	}
}

// failTerminal routes the readiness diagnostic and fixes the exit
// status; only the first terminal event wins.
func (l *Launcher) failTerminal(diag string) {
	l.setDiagnostic(diag)
	if !l.coord.HandleFailed(diag) {
		slog.Error("backend failure after startup", "detail", diag)
	}
	l.setExit(ExitReadinessFailed)
	if l.program != nil {
		l.program.Quit()
	}
}

// abortSpawn handles the unrecoverable environment error path.
func (l *Launcher) abortSpawn(err error) {
	diag := fmt.Sprintf("cannot start backend %s: %v", l.cfg.Backend.Name, err)
	l.setDiagnostic(diag)
	slog.Error("backend spawn aborted", "error", err)
	l.broadcast(withDetail(l.event(history.EventSpawnFailed), err.Error()))
	l.setExit(ExitSpawnFailed)
	if l.program != nil {
		l.program.Quit()
	}
}

func withDetail(e history.Event, detail string) history.Event {
	e.Detail = detail
	return e
}
