package usher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func waitUntil(t *testing.T, timeout, step time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(step)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

const okResponse = "HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"

// serve200 answers probe requests in place of the shell script backend,
// which cannot open a listener of its own.
func serve200(t *testing.T, port int) (stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("listen :%d: %v", port, err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 512)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte(okResponse))
			_ = conn.Close()
		}
	}()
	return func() {
		_ = ln.Close()
		<-done
	}
}

type recorderSink struct {
	mu     sync.Mutex
	events []HistoryEvent
}

func (r *recorderSink) Send(_ context.Context, e HistoryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorderSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, string(e.Type))
	}
	return out
}

func launchConfig(script string, port int) Config {
	c := DefaultConfig()
	c.Backend.Name = "fake-note-api"
	c.Backend.Path = script
	c.Backend.Port = port
	c.Backend.StopTimeout = 2 * time.Second
	c.Reaper.Enabled = false
	c.Probe.Interval = 20 * time.Millisecond
	c.Probe.MaxAttempts = 100
	c.Probe.DialTimeout = 200 * time.Millisecond
	c.Probe.ReadTimeout = 500 * time.Millisecond
	return c
}

func TestLauncherFacadeLaunchAndShutdown(t *testing.T) {
	requireUnix(t)
	port := freePort(t)
	stop := serve200(t, port)
	defer stop()
	script := writeScript(t, "fake-note-api", "sleep 30")

	l := New(launchConfig(script, port))
	rec := &recorderSink{}
	l.AddSink(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	codeCh := make(chan int, 1)
	go func() { codeCh <- l.Run(ctx) }()

	waitUntil(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return l.Status().Ready()
	})
	st := l.Status()
	if st.App != "OpenAutoNote" || st.Backend.PID == 0 {
		t.Fatalf("unexpected status: %+v", st)
	}

	cancel()
	select {
	case code := <-codeCh:
		if code != ExitOK {
			t.Fatalf("exit status %d, want %d", code, ExitOK)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("launcher did not stop")
	}
	if d := l.Diagnostic(); d != "" {
		t.Fatalf("unexpected diagnostic %q", d)
	}
	joined := strings.Join(rec.types(), ",")
	for _, want := range []string{"launch_started", "backend_spawned", "backend_ready", "shutdown"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %s event in %s", want, joined)
		}
	}
}

func TestLauncherFacadeSpawnFailure(t *testing.T) {
	requireUnix(t)
	c := launchConfig(filepath.Join(t.TempDir(), "missing-backend"), freePort(t))
	l := New(c)
	if code := l.Run(context.Background()); code != ExitSpawnFailed {
		t.Fatalf("exit status %d, want %d", code, ExitSpawnFailed)
	}
	if !strings.Contains(l.Diagnostic(), "cannot start backend") {
		t.Fatalf("diagnostic %q", l.Diagnostic())
	}
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	c, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Backend.Name != "api-server" || c.Backend.Port != 8964 {
		t.Fatalf("unexpected defaults: %+v", c.Backend)
	}

	p := filepath.Join(t.TempDir(), "usher.toml")
	data := `
[app]
name = "NoteDev"

[backend]
name = "note-api"
port = 9001
`
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err = LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.App.Name != "NoteDev" || c.Backend.Port != 9001 {
		t.Fatalf("unexpected config: app=%q port=%d", c.App.Name, c.Backend.Port)
	}
}

func TestProbeFacade(t *testing.T) {
	requireUnix(t)
	port := freePort(t)
	stop := serve200(t, port)
	defer stop()

	res := Probe(context.Background(), "127.0.0.1", port, 10*time.Millisecond, 50)
	if res.State.String() != "ready" || res.Attempts < 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = Probe(context.Background(), "127.0.0.1", freePort(t), 5*time.Millisecond, 2)
	if res.State.String() != "failed" || res.Attempts != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestReapFacadeNoVictims(t *testing.T) {
	requireUnix(t)
	if n := Reap(context.Background(), "no-such-backend-xyz", 0); n != 0 {
		t.Fatalf("reaped %d, want 0", n)
	}
}

func TestNewStatusServerHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New(DefaultConfig())
	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))
	srv, err := NewStatusServer(addr, "", l)
	if err != nil {
		t.Fatalf("NewStatusServer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	var resp *http.Response
	waitUntil(t, 3*time.Second, 20*time.Millisecond, func() bool {
		r, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp = r
		return true
	})
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz status %d body %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "probing") {
		t.Fatalf("healthz body %s", body)
	}
}

func TestNewStatusServerRejectsPublicAddr(t *testing.T) {
	l := New(DefaultConfig())
	if _, err := NewStatusServer("0.0.0.0:7878", "", l); err == nil {
		t.Fatal("expected loopback error")
	}
}

func TestMetricsFacadeRegisters(t *testing.T) {
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("RegisterMetricsDefault: %v", err)
	}
}
