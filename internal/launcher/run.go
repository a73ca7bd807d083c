package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openautonote/usher/internal/drain"
	"github.com/openautonote/usher/internal/history"
	"github.com/openautonote/usher/internal/metrics"
	"github.com/openautonote/usher/internal/probe"
	"github.com/openautonote/usher/internal/server"
	"github.com/openautonote/usher/internal/sidecar"
	"github.com/openautonote/usher/internal/ui"
)

// outcome classifies how one backend incarnation ended.
type outcome int

const (
	outcomeShutdown   outcome = iota // ctx canceled: user closed the app
	outcomeFatal                     // readiness failure before first handoff
	outcomeSpawnAbort                // spawn refused by the environment
	outcomeRestart                   // post-ready death with restart budget left
	outcomeLinger                    // backend stays down, app keeps running
)

// usageInterval and usageHistory size the debug resource sampler; they
// are fixed rather than configured, the debug API is a development aid.
const (
	usageInterval = 5 * time.Second
	usageHistory  = 120
)

// Run executes the full launch sequence and blocks until the
// application is done: reap stale backends, spawn, drain output, probe
// readiness, hand off the UI, then supervise until shutdown. The
// return value is the process exit status.
func (l *Launcher) Run(ctx context.Context) int {
	l.mu.Lock()
	l.startedAt = time.Now()
	l.mu.Unlock()

	port, err := resolvePort(l.cfg.Backend.Port)
	if err != nil {
		l.abortSpawn(err)
		return l.exit()
	}
	l.mu.Lock()
	l.port = port
	l.mu.Unlock()

	stopDebug := l.startDebug(ctx)
	defer stopDebug()

	l.openSinks()
	defer l.closeSinks()
	l.broadcast(l.event(history.EventLaunchStarted))

	l.reap(ctx, port)

	fileOut, fileErr := l.openLogFiles()

	var drains sync.WaitGroup
	restarts := 0
	for {
		out := l.runOnce(ctx, port, fileOut, fileErr, &drains, restarts)
		if out == outcomeRestart {
			restarts++
			l.mu.Lock()
			l.restarts = restarts
			l.mu.Unlock()
			continue
		}
		if out == outcomeLinger {
			<-ctx.Done()
			l.broadcast(l.event(history.EventShutdown))
			l.setExit(ExitOK)
		}
		break
	}

	drains.Wait()
	closeWriter(fileOut)
	closeWriter(fileErr)
	return l.exit()
}

// runOnce supervises a single backend incarnation from spawn to its
// terminal condition. The select below is the heart of the launcher:
// the probe and the drain run independently, and consumed one-shot
// channels are nilled out so the loop only waits on live sources.
func (l *Launcher) runOnce(ctx context.Context, port int, fileOut, fileErr io.Writer, drains *sync.WaitGroup, restarts int) outcome {
	name := l.cfg.Backend.Name

	proc, err := sidecar.Start(l.spawnSpec(), port)
	if err != nil {
		l.abortSpawn(err)
		return outcomeSpawnAbort
	}
	l.setProc(proc)
	metrics.IncLaunch(name)
	metrics.SetBackendUp(name, true)
	if l.usage != nil {
		l.usage.Track(name, int32(proc.PID()))
	}
	spawned := l.event(history.EventBackendSpawned)
	spawned.PID = proc.PID()
	l.broadcast(spawned)
	slog.Info("backend spawned", "name", name, "pid", proc.PID(), "port", port)

	d := &drain.Drain{
		Console:      l.console,
		StdoutPrefix: l.cfg.Drain.StdoutPrefix,
		StderrPrefix: l.cfg.Drain.StderrPrefix,
		FileOut:      fileOut,
		FileErr:      fileErr,
	}
	if l.onLine != nil {
		d.OnLine = func(kind sidecar.EventKind, line string) {
			l.onLine(kind == sidecar.Stderr, line)
		}
	}
	drainCh := make(chan drain.Exit, 1)
	drains.Add(1)
	go func() {
		defer drains.Done()
		drainCh <- d.Run(proc.Events())
	}()

	probeCtx, cancelProbe := context.WithCancel(ctx)
	defer cancelProbe()
	probeCh := make(chan probe.Result, 1)
	go func() {
		p := &probe.Prober{
			Name:        name,
			Port:        port,
			Interval:    l.cfg.Probe.Interval,
			MaxAttempts: l.cfg.Probe.MaxAttempts,
			DialTimeout: l.cfg.Probe.DialTimeout,
			ReadTimeout: l.cfg.Probe.ReadTimeout,
		}
		probeCh <- p.Run(probeCtx)
	}()

	ready := false
	for {
		select {
		case <-ctx.Done():
			return l.stopBackend(proc, drainCh)

		case res := <-probeCh:
			probeCh = nil
			l.setProbe(res)
			switch res.State {
			case probe.Ready:
				ready = true
				l.broadcast(withAttempts(l.event(history.EventBackendReady), res.Attempts))
				slog.Info("backend ready", "name", name, "attempts", res.Attempts, "elapsed", res.Elapsed)
				if l.program != nil {
					l.program.Send(ui.ReadyMsg{Attempts: res.Attempts, Elapsed: res.Elapsed})
				}
				l.coord.HandleReady()
			case probe.Failed:
				diag := fmt.Sprintf("backend %s did not become ready on port %d after %d attempts (%s)",
					name, port, res.Attempts, res.Elapsed.Round(time.Millisecond))
				l.broadcast(withAttempts(withDetail(l.event(history.EventReadinessFailed), diag), res.Attempts))
				cancelProbe()
				_ = proc.Stop(l.cfg.Backend.StopTimeout)
				l.finishExit(<-drainCh)
				if restarts == 0 {
					l.failTerminal(diag)
					return outcomeFatal
				}
				// A restarted backend that cannot come back stays down;
				// the application itself keeps running.
				slog.Error("restarted backend never became ready", "name", name, "attempts", res.Attempts)
				if l.program != nil {
					l.program.Send(ui.BackendExitMsg{Code: l.lastExitCode()})
				}
				return outcomeLinger
			case probe.Canceled:
				// Shutdown is in flight; the ctx.Done branch finishes it.
			}

		case ex := <-drainCh:
			drainCh = nil
			l.finishExit(ex)
			if !ready {
				cancelProbe()
				if restarts > 0 {
					slog.Error("restarted backend exited before becoming ready", "name", name, "code", ex.Code)
					if l.program != nil {
						l.program.Send(ui.BackendExitMsg{Code: ex.Code})
					}
					return outcomeLinger
				}
				diag := fmt.Sprintf("backend %s exited with code %d before becoming ready", name, ex.Code)
				l.failTerminal(diag)
				return outcomeFatal
			}
			if l.cfg.Backend.AutoRestart && restarts < l.cfg.Backend.MaxRestarts {
				slog.Warn("backend exited, restarting",
					"name", name, "code", ex.Code, "restart", restarts+1, "max", l.cfg.Backend.MaxRestarts)
				metrics.IncRestart(name)
				l.broadcast(withDetail(l.event(history.EventBackendRestart), fmt.Sprintf("exit code %d", ex.Code)))
				select {
				case <-time.After(l.cfg.Backend.RestartInterval):
					return outcomeRestart
				case <-ctx.Done():
					l.broadcast(l.event(history.EventShutdown))
					l.setExit(ExitOK)
					return outcomeShutdown
				}
			}
			slog.Error("backend exited, not restarting", "name", name, "code", ex.Code)
			if l.program != nil {
				l.program.Send(ui.BackendExitMsg{Code: ex.Code})
			}
			return outcomeLinger
		}
	}
}

// stopBackend handles the requested-shutdown path: stop the process
// group, account for its exit, and fix status 0 unless an earlier
// terminal event already decided otherwise.
func (l *Launcher) stopBackend(proc *sidecar.Process, drainCh <-chan drain.Exit) outcome {
	_ = proc.Stop(l.cfg.Backend.StopTimeout)
	l.finishExit(<-drainCh)
	l.broadcast(l.event(history.EventShutdown))
	l.setExit(ExitOK)
	return outcomeShutdown
}

// finishExit records one backend exit in status, metrics, and history.
func (l *Launcher) finishExit(ex drain.Exit) {
	name := l.cfg.Backend.Name
	l.setProc(nil)
	if l.usage != nil {
		l.usage.Untrack()
	}
	metrics.SetBackendUp(name, false)
	metrics.IncExit(name)
	e := l.event(history.EventBackendExit)
	e.ExitCode = ex.Code
	if ex.Err != nil {
		e.Detail = ex.Err.Error()
	}
	l.broadcast(e)
}

func (l *Launcher) lastExitCode() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastStatus.ExitCode
}

// startDebug brings up the loopback debug API when configured. The
// returned stop function is idempotent and safe when debug is off.
func (l *Launcher) startDebug(ctx context.Context) func() {
	listen := l.cfg.Debug.Listen
	if listen == "" {
		return func() {}
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		slog.Warn("metrics registration failed", "error", err)
	}
	l.usage = metrics.NewUsageCollector(metrics.UsageConfig{
		Enabled:  true,
		Interval: usageInterval,
		History:  usageHistory,
	})
	if err := l.usage.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		slog.Warn("usage metrics registration failed", "error", err)
	}
	l.usage.Start(ctx)
	srv, err := server.NewServer(listen, "", l.Status, l.usage)
	if err != nil {
		slog.Warn("debug server unavailable", "listen", listen, "error", err)
		l.usage.Stop()
		l.usage = nil
		return func() {}
	}
	slog.Info("debug server listening", "addr", listen)
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		l.usage.Stop()
	}
}

// openLogFiles opens the rotating file copies of the backend streams.
// Failures degrade to console-only relay.
func (l *Launcher) openLogFiles() (io.Writer, io.Writer) {
	lc := l.cfg.LoggerConfig()
	if !lc.Enabled() {
		return nil, nil
	}
	outW, errW, err := lc.Writers(l.cfg.Backend.Name)
	if err != nil {
		slog.Warn("backend log files unavailable", "error", err)
		return nil, nil
	}
	return outW, errW
}

func closeWriter(w io.Writer) {
	if c, ok := w.(io.Closer); ok && c != nil {
		_ = c.Close()
	}
}

func withAttempts(e history.Event, attempts int) history.Event {
	e.Attempts = attempts
	return e
}
