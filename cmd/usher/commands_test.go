package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openautonote/usher/internal/config"
)

func testCommand() (command, *bytes.Buffer) {
	var buf bytes.Buffer
	return command{stdout: &buf}, &buf
}

func TestHelpMentionsLaunch(t *testing.T) {
	c, _ := testCommand()
	root := buildRoot(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--help"})
	if err := root.Execute(); err != nil {
		t.Fatalf("help: %v", err)
	}
	help := out.String()
	for _, want := range []string{"usher", "probe", "reap", "status", "init"} {
		if !strings.Contains(help, want) {
			t.Fatalf("help missing %q:\n%s", want, help)
		}
	}
}

func TestInitToStdout(t *testing.T) {
	c, buf := testCommand()
	root := buildRoot(c)
	root.SetArgs([]string{"init", "--profile", "dev"})
	if err := root.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "[backend]") || !strings.Contains(out, "port = 0") {
		t.Fatalf("unexpected init output:\n%s", out)
	}
}

func TestInitWritesAndRefusesOverwrite(t *testing.T) {
	c, buf := testCommand()
	path := filepath.Join(t.TempDir(), "usher.toml")

	if err := c.Init(&InitFlags{Profile: "desktop", Output: path}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(buf.String(), "wrote") {
		t.Fatalf("output = %q", buf.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	if err := c.Init(&InitFlags{Profile: "desktop", Output: path}); err == nil {
		t.Fatal("expected refusal without --force")
	}
	if err := c.Init(&InitFlags{Profile: "desktop", Output: path, Force: true}); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}

func TestInitUnknownProfile(t *testing.T) {
	c, _ := testCommand()
	if err := c.Init(&InitFlags{Profile: "serverless"}); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestProbeReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
			_ = conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	c, buf := testCommand()
	err = c.Probe(&GlobalFlags{}, &ProbeFlags{Host: "127.0.0.1", Port: port, Interval: 10 * time.Millisecond, MaxAttempts: 5})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !strings.Contains(buf.String(), "ready") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestProbeFailureCarriesExitStatus(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	c, buf := testCommand()
	err = c.Probe(&GlobalFlags{}, &ProbeFlags{Host: "127.0.0.1", Port: port, Interval: 10 * time.Millisecond, MaxAttempts: 2})
	var ee exitError
	if !errors.As(err, &ee) || ee.code != 1 {
		t.Fatalf("err = %v, want exit status 1", err)
	}
	if !strings.Contains(buf.String(), "failed") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestReapNothingToDo(t *testing.T) {
	c, buf := testCommand()
	err := c.Reap(&GlobalFlags{}, &ReapFlags{Name: "usher-test-no-such-backend", Port: 59999})
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if !strings.Contains(buf.String(), "terminated 0") {
		t.Fatalf("output = %q", buf.String())
	}
}

func statusStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"app": "OpenAutoNote",
			"backend": {"name":"api-server","running":true,"pid":77,"port":8964},
			"probe": {"state":"ready","attempts":2,"elapsed_seconds":0.8},
			"restarts": 0
		}`))
	})
	mux.HandleFunc("/usage", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"latest":{"pid":77,"cpu_percent":1.5,"memory_mb":42.0},"history":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusHumanReadable(t *testing.T) {
	srv := statusStubServer(t)
	c, buf := testCommand()
	err := c.Status(&GlobalFlags{}, &StatusFlags{APIUrl: srv.URL, APITimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"OpenAutoNote", "api-server", "ready", "restarts: 0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	srv := statusStubServer(t)
	c, buf := testCommand()
	err := c.Status(&GlobalFlags{}, &StatusFlags{APIUrl: srv.URL, APITimeout: 2 * time.Second, JSON: true})
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if decoded["app"] != "OpenAutoNote" {
		t.Fatalf("decoded = %v", decoded)
	}
}

func TestStatusUsage(t *testing.T) {
	srv := statusStubServer(t)
	c, buf := testCommand()
	err := c.Status(&GlobalFlags{}, &StatusFlags{APIUrl: srv.URL, APITimeout: 2 * time.Second, Usage: true})
	if err != nil {
		t.Fatalf("status --usage: %v", err)
	}
	if !strings.Contains(buf.String(), "cpu_percent") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestStatusWithoutDebugAPI(t *testing.T) {
	c, _ := testCommand()
	err := c.Status(&GlobalFlags{}, &StatusFlags{APITimeout: time.Second})
	if err == nil || !strings.Contains(err.Error(), "no debug API configured") {
		t.Fatalf("err = %v", err)
	}
}

func TestApplyLaunchFlags(t *testing.T) {
	cfg := config.Default()
	applyLaunchFlags(&cfg, &LaunchFlags{
		HeadlessSet: true, Headless: true,
		PortSet: true, Port: 0,
		Backend: "notes-api",
		Secret:  "s3cret",
	})
	if !cfg.App.Headless {
		t.Fatal("headless not applied")
	}
	if cfg.Backend.Port != 0 {
		t.Fatalf("explicit port 0 not applied, got %d", cfg.Backend.Port)
	}
	if cfg.Backend.Name != "notes-api" || cfg.Backend.Secret != "s3cret" {
		t.Fatalf("backend = %+v", cfg.Backend)
	}

	cfg = config.Default()
	applyLaunchFlags(&cfg, &LaunchFlags{})
	if cfg.Backend.Port != config.DefaultPort {
		t.Fatalf("unset flags changed the port to %d", cfg.Backend.Port)
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := resolveConfigPath("/explicit/path.toml"); got != "/explicit/path.toml" {
		t.Fatalf("explicit path not honored: %q", got)
	}
	// No usher.toml next to the test binary or in the working directory.
	if got := resolveConfigPath(""); got != "" {
		t.Fatalf("expected empty fallback, got %q", got)
	}
}
