package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openautonote/usher/internal/metrics"
	"github.com/openautonote/usher/internal/sidecar"
)

// Router provides the embeddable debug API for a running launcher.
// Endpoints:
//
//	GET {basePath}/status   full launch status JSON
//	GET {basePath}/healthz  200 once the backend answered the probe, 503 before
//	GET {basePath}/metrics  prometheus exposition
//	GET {basePath}/usage    backend resource samples (404 when sampling is off)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	status   func() Status
	usage    *metrics.UsageCollector
	basePath string
}

// ProbeStatus is the readiness part of the status report.
type ProbeStatus struct {
	State          string  `json:"state"`
	Attempts       int     `json:"attempts"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Status is the launcher state served by /status.
type Status struct {
	App       string         `json:"app"`
	StartedAt time.Time      `json:"started_at"`
	Backend   sidecar.Status `json:"backend"`
	Probe     ProbeStatus    `json:"probe"`
	Restarts  int            `json:"restarts"`
}

// Ready reports whether the backend passed the probe and is still up.
func (s Status) Ready() bool {
	return s.Probe.State == "ready" && s.Backend.Running
}

// NewRouter constructs a Router. status must be safe to call from any
// goroutine; usage may be nil when sampling is disabled.
func NewRouter(status func() Status, usage *metrics.UsageCollector, basePath string) *Router {
	return &Router{status: status, usage: usage, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	group.GET("/usage", r.handleUsage)
	return g
}

// NewServer starts the debug server on addr. Only loopback addresses
// are accepted: this API reports local process details and must never
// face the network.
func NewServer(addr, basePath string, status func() Status, usage *metrics.UsageCollector) (*http.Server, error) {
	if err := ensureLoopback(addr); err != nil {
		return nil, err
	}
	r := NewRouter(status, usage, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type healthResp struct {
	Status string `json:"status"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.status())
}

func (r *Router) handleHealthz(c *gin.Context) {
	st := r.status()
	if st.Ready() {
		writeJSON(c, http.StatusOK, healthResp{Status: "ok"})
		return
	}
	state := st.Probe.State
	if state == "" {
		state = "starting"
	}
	writeJSON(c, http.StatusServiceUnavailable, healthResp{Status: state})
}

type usageResp struct {
	Latest  *metrics.Sample  `json:"latest,omitempty"`
	History []metrics.Sample `json:"history"`
}

func (r *Router) handleUsage(c *gin.Context) {
	if r.usage == nil || !r.usage.IsEnabled() {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "usage sampling disabled"})
		return
	}
	resp := usageResp{History: r.usage.History()}
	if s, ok := r.usage.Latest(); ok {
		resp.Latest = &s
	}
	writeJSON(c, http.StatusOK, resp)
}
