package probe

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/openautonote/usher/internal/metrics"
)

// probeRequest is the exact request sent on every attempt. The backend
// contract is an HTTP success line on GET /; anything else means "not
// yet ready".
const probeRequest = "GET / HTTP/1.1\r\nHost: 127.0.0.1\r\nConnection: close\r\n\r\n"

// readBudget bounds how much of the response is read; classification
// needs only the status line prefix.
const readBudget = 64

var (
	okHTTP11 = []byte("HTTP/1.1 200")
	okHTTP10 = []byte("HTTP/1.0 200")
)

// State is the readiness machine: Probing is the transient state while
// attempts remain; Ready and Failed are terminal; Canceled means the
// application shut down mid-probe.
type State int

const (
	Probing State = iota
	Ready
	Failed
	Canceled
)

func (s State) String() string {
	switch s {
	case Probing:
		return "probing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result is the prober's terminal report.
type Result struct {
	State    State
	Attempts int
	Elapsed  time.Duration
}

// Prober polls a local TCP port until the backend answers the probe
// request with an HTTP success line, or the attempt budget is spent.
type Prober struct {
	Name        string // backend name, used for logging and metrics labels
	Host        string // defaults to 127.0.0.1
	Port        int
	Interval    time.Duration // fixed spacing between attempts, default 500ms
	MaxAttempts int           // default 60
	DialTimeout time.Duration // default 1s
	ReadTimeout time.Duration // default 2s
}

const (
	defaultInterval    = 500 * time.Millisecond
	defaultMaxAttempts = 60
	defaultDialTimeout = time.Second
	defaultReadTimeout = 2 * time.Second
)

// Run probes until Ready, until the budget is exhausted, or until ctx
// is cancelled by application shutdown. Transient failures are retry
// signals, not errors; they surface only as debug logs.
func (p *Prober) Run(ctx context.Context) Result {
	host := p.Host
	if host == "" {
		host = "127.0.0.1"
	}
	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	addr := net.JoinHostPort(host, strconv.Itoa(p.Port))

	start := time.Now()
	for n := 1; n <= maxAttempts; n++ {
		metrics.IncProbeAttempt(p.Name)
		if p.attempt(addr) {
			res := Result{State: Ready, Attempts: n, Elapsed: time.Since(start)}
			metrics.ObserveReadiness(p.Name, res.Elapsed.Seconds())
			slog.Debug("backend ready", "addr", addr, "attempt", n, "elapsed", res.Elapsed)
			return res
		}
		slog.Debug("backend not ready", "addr", addr, "attempt", n, "max", maxAttempts)
		select {
		case <-ctx.Done():
			return Result{State: Canceled, Attempts: n, Elapsed: time.Since(start)}
		case <-time.After(interval):
		}
	}
	return Result{State: Failed, Attempts: maxAttempts, Elapsed: time.Since(start)}
}

// attempt performs one connect/request/classify round trip.
func (p *Prober) attempt(addr string) bool {
	dialTimeout := p.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	readTimeout := p.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(readTimeout))
	if _, err := conn.Write([]byte(probeRequest)); err != nil {
		return false
	}
	buf := make([]byte, readBudget)
	n, _ := conn.Read(buf)
	if n == 0 {
		return false
	}
	return classify(buf[:n])
}

// classify checks the 12-byte success prefix; no header parsing.
func classify(b []byte) bool {
	return bytes.HasPrefix(b, okHTTP11) || bytes.HasPrefix(b, okHTTP10)
}
