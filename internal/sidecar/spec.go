package sidecar

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/openautonote/usher/internal/env"
)

// Spec describes the backend process to supervise.
type Spec struct {
	Name        string        `json:"name"`                   // logical executable name, e.g. "api-server"
	Path        string        `json:"path,omitempty"`         // explicit executable path; overrides lookup
	Secret      string        `json:"-"`                      // optional --secret value, never persisted
	Args        []string      `json:"args,omitempty"`         // extra arguments appended verbatim
	WorkDir     string        `json:"work_dir,omitempty"`     // optional working dir
	Env         []string      `json:"env,omitempty"`          // optional extra env, KEY=VALUE
	PIDFile     string        `json:"pid_file,omitempty"`     // optional pidfile path
	StopTimeout time.Duration `json:"stop_timeout,omitempty"` // graceful window before the kill escalation
}

// Locate resolves the backend executable. Resolution order: explicit
// path, a sibling of the launcher executable, then PATH lookup.
func (s *Spec) Locate() (string, error) {
	if s.Path != "" {
		if _, err := os.Stat(s.Path); err != nil {
			return "", fmt.Errorf("backend executable %s: %w", s.Path, err)
		}
		return s.Path, nil
	}
	name := s.Name
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}
	if exe, err := os.Executable(); err == nil {
		cand := filepath.Join(filepath.Dir(exe), name)
		if st, err := os.Stat(cand); err == nil && !st.IsDir() {
			return cand, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("locate backend %q: %w", s.Name, err)
	}
	return path, nil
}

// BuildArgs assembles the backend argument vector for the given port.
// The port is passed explicitly so an ephemeral pick reaches the child
// unchanged.
func (s *Spec) BuildArgs(port int) []string {
	args := []string{"--port", strconv.Itoa(port)}
	if s.Secret != "" {
		args = append(args, "--secret", s.Secret)
	}
	return append(args, s.Args...)
}

// Command constructs the *exec.Cmd for this spec bound to port.
func (s *Spec) Command(port int) (*exec.Cmd, error) {
	path, err := s.Locate()
	if err != nil {
		return nil, err
	}
	// ok: intentional execution, path resolved from our own config
	// #nosec G204
	cmd := exec.Command(path, s.BuildArgs(port)...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = env.Compose(s.Env)
	}
	configureSysProcAttr(cmd)
	return cmd, nil
}
