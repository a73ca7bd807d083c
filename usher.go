package usher

import (
	"context"
	"net/http"
	"strconv"
	"time"

	cfg "github.com/openautonote/usher/internal/config"
	"github.com/openautonote/usher/internal/history"
	"github.com/openautonote/usher/internal/history/factory"
	"github.com/openautonote/usher/internal/launcher"
	"github.com/openautonote/usher/internal/metrics"
	"github.com/openautonote/usher/internal/probe"
	"github.com/openautonote/usher/internal/reaper"
	iapi "github.com/openautonote/usher/internal/server"
	"github.com/openautonote/usher/internal/sidecar"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Status = iapi.Status

type BackendStatus = sidecar.Status

type ProbeResult = probe.Result

type HistoryEvent = history.Event

type HistorySink = history.Sink

// Exit statuses returned by Launcher.Run.
const (
	ExitOK              = launcher.ExitOK
	ExitReadinessFailed = launcher.ExitReadinessFailed
	ExitSpawnFailed     = launcher.ExitSpawnFailed
)

// Launcher is a thin facade over internal/launcher.
// It provides a stable public API for embedding the headless launch
// sequence: reap stale backends, spawn, drain logs, gate on readiness,
// supervise until shutdown.

type Launcher struct{ inner *launcher.Launcher }

func New(c Config) *Launcher { return &Launcher{inner: launcher.New(c)} }

// AddSink registers an extra history sink alongside any configured DSN
// sink. Call before Run; the launcher closes every sink when Run
// returns.
func (l *Launcher) AddSink(s HistorySink) { l.inner.AddSink(s) }

// Run drives one launch to completion and returns the process exit
// status: ExitOK after a clean shutdown, ExitReadinessFailed when the
// backend never became ready, ExitSpawnFailed when it could not be
// spawned at all.
func (l *Launcher) Run(ctx context.Context) int { return l.inner.Run(ctx) }

func (l *Launcher) Status() Status     { return l.inner.Status() }
func (l *Launcher) Diagnostic() string { return l.inner.Diagnostic() }

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

func DefaultConfig() Config { return cfg.Default() }

// Probe runs one readiness loop against host:port and reports the
// terminal result. Zero interval or maxAttempts fall back to the
// prober defaults.
func Probe(ctx context.Context, host string, port int, interval time.Duration, maxAttempts int) ProbeResult {
	p := probe.Prober{Host: host, Port: port, Interval: interval, MaxAttempts: maxAttempts}
	return p.Run(ctx)
}

// Reap terminates stale backend processes matching name, scoped to the
// given port when nonzero, and reports how many were signalled.
func Reap(ctx context.Context, name string, port int) int {
	var marker []string
	if port > 0 {
		marker = []string{"--port", strconv.Itoa(port)}
	}
	r := reaper.New(reaper.Target{Name: name, Marker: marker})
	return r.Reap(ctx)
}

// NewStatusServer exposes the debug API for an embedded launcher.
func NewStatusServer(addr, basePath string, l *Launcher) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, l.inner.Status, nil)
}

// NewHistorySink opens a sink from a DSN; see the history package for
// the supported schemes.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
