package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	backendLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usher",
			Subsystem: "backend",
			Name:      "launches_total",
			Help:      "Number of backend spawn attempts.",
		}, []string{"name"},
	)
	backendRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usher",
			Subsystem: "backend",
			Name:      "restarts_total",
			Help:      "Number of automatic backend restarts after readiness.",
		}, []string{"name"},
	)
	backendExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usher",
			Subsystem: "backend",
			Name:      "exits_total",
			Help:      "Number of backend exits observed.",
		}, []string{"name"},
	)
	backendUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "usher",
			Subsystem: "backend",
			Name:      "up",
			Help:      "Whether the backend is currently running (1) or not (0).",
		}, []string{"name"},
	)
	reaperKilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usher",
			Subsystem: "reaper",
			Name:      "killed_total",
			Help:      "Number of stale backend processes terminated before launch.",
		}, []string{"name"},
	)
	probeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usher",
			Subsystem: "probe",
			Name:      "attempts_total",
			Help:      "Number of readiness probe attempts.",
		}, []string{"name"},
	)
	readinessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "usher",
			Subsystem: "probe",
			Name:      "readiness_duration_seconds",
			Help:      "Time from backend spawn to the first successful probe.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{backendLaunches, backendRestarts, backendExits, backendUp, reaperKilled, probeAttempts, readinessDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncLaunch(name string) {
	if regOK.Load() {
		backendLaunches.WithLabelValues(name).Inc()
	}
}
func IncRestart(name string) {
	if regOK.Load() {
		backendRestarts.WithLabelValues(name).Inc()
	}
}
func IncExit(name string) {
	if regOK.Load() {
		backendExits.WithLabelValues(name).Inc()
	}
}
func IncReaped(name string) {
	if regOK.Load() {
		reaperKilled.WithLabelValues(name).Inc()
	}
}
func AddReaped(name string, n int) {
	if n > 0 && regOK.Load() {
		reaperKilled.WithLabelValues(name).Add(float64(n))
	}
}
func IncProbeAttempt(name string) {
	if regOK.Load() {
		probeAttempts.WithLabelValues(name).Inc()
	}
}
func ObserveReadiness(name string, seconds float64) {
	if regOK.Load() {
		readinessDuration.WithLabelValues(name).Observe(seconds)
	}
}
func SetBackendUp(name string, up bool) {
	if regOK.Load() {
		var v float64
		if up {
			v = 1
		}
		backendUp.WithLabelValues(name).Set(v)
	}
}
