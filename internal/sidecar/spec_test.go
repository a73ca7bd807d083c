package sidecar

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		port int
		want []string
	}{
		{
			name: "port only",
			spec: Spec{Name: "api-server"},
			port: 8964,
			want: []string{"--port", "8964"},
		},
		{
			name: "with secret",
			spec: Spec{Name: "api-server", Secret: "s3cret"},
			port: 8964,
			want: []string{"--port", "8964", "--secret", "s3cret"},
		},
		{
			name: "extra args after the contract args",
			spec: Spec{Name: "api-server", Secret: "x", Args: []string{"--verbose", "--db", "main"}},
			port: 9100,
			want: []string{"--port", "9100", "--secret", "x", "--verbose", "--db", "main"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.spec.BuildArgs(tt.port)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("BuildArgs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocateExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backend")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := Spec{Name: "whatever", Path: path}
	got, err := s.Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if got != path {
		t.Fatalf("Locate = %q, want %q", got, path)
	}
}

func TestLocateExplicitPathMissing(t *testing.T) {
	s := Spec{Name: "x", Path: filepath.Join(t.TempDir(), "missing")}
	if _, err := s.Locate(); err == nil {
		t.Fatal("expected error for missing explicit path")
	}
}

func TestLocateFallsBackToPATH(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh being on PATH")
	}
	s := Spec{Name: "sh"}
	got, err := s.Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if got == "" {
		t.Fatal("empty path from PATH lookup")
	}
}

func TestLocateUnknownName(t *testing.T) {
	s := Spec{Name: "definitely-not-a-real-backend-qqq"}
	if _, err := s.Locate(); err == nil {
		t.Fatal("expected lookup failure")
	}
}

func TestCommandAppliesWorkdirAndEnv(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	work := filepath.Join(dir, "work")
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	script := writeScript(t, "exit 0")

	s := Spec{Name: "cfg", Path: script, WorkDir: work, Env: []string{"FOO=bar"}}
	cmd, err := s.Command(8964)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if cmd.Dir != work {
		t.Fatalf("workdir not applied: got %q want %q", cmd.Dir, work)
	}
	found := false
	for _, kv := range cmd.Env {
		if kv == "FOO=bar" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("extra env not merged: %v", cmd.Env)
	}
	if cmd.SysProcAttr == nil {
		t.Fatal("SysProcAttr not configured")
	}
}

func TestCommandExpandsEnvReferences(t *testing.T) {
	requireUnix(t)
	t.Setenv("USHER_SPEC_BASE", "/data")
	script := writeScript(t, "exit 0")

	s := Spec{Name: "cfg", Path: script, Env: []string{"STORE=${USHER_SPEC_BASE}/notes"}}
	cmd, err := s.Command(8964)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	found := false
	for _, kv := range cmd.Env {
		if kv == "STORE=/data/notes" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("env reference not expanded: %v", cmd.Env)
	}
}
