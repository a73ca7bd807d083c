package sidecar

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

const (
	// eventBuffer gives the pipe readers slack when the drain briefly
	// falls behind a bursty backend.
	eventBuffer = 256
	// maxLineBytes caps a single output line; longer lines stop the
	// reader for that stream.
	maxLineBytes = 1024 * 1024

	killGrace = 200 * time.Millisecond
)

// Process is a running backend under supervision. It is created by Start
// and owns exactly one child process for its lifetime.
type Process struct {
	spec Spec
	port int
	cmd  *exec.Cmd // set once in Start, never mutated after

	mu       sync.Mutex
	status   Status
	stopping bool
	exitErr  error

	waitDone chan struct{} // closed by the exit monitor after cmd.Wait returns
	events   chan Event
}

// Start spawns the backend described by spec with --port bound to port.
// A failure here means the environment is broken (missing executable,
// refused spawn); callers treat it as fatal rather than retryable.
func Start(spec Spec, port int) (*Process, error) {
	cmd, err := spec.Command(port)
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", spec.Name, err)
	}

	p := &Process{
		spec:     spec,
		port:     port,
		cmd:      cmd,
		waitDone: make(chan struct{}),
		events:   make(chan Event, eventBuffer),
		status: Status{
			Name:      spec.Name,
			Running:   true,
			PID:       cmd.Process.Pid,
			Port:      port,
			StartedAt: time.Now(),
		},
	}
	p.writePIDFile()

	var readers sync.WaitGroup
	readers.Add(2)
	go p.readLines(stdout, Stdout, &readers)
	go p.readLines(stderr, Stderr, &readers)
	go p.monitorExit(&readers)
	return p, nil
}

// Events returns the stream of output lines and the final Exit event.
// The channel is closed after Exit has been delivered.
func (p *Process) Events() <-chan Event { return p.events }

// Done is closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.PID
}

func (p *Process) Port() int { return p.port }

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// StopRequested reports whether Stop has been called; the launcher uses
// it to tell a requested shutdown from an unexpected backend death.
func (p *Process) StopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// readLines forwards one event per line until the pipe closes.
func (p *Process) readLines(r io.Reader, kind EventKind, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		p.events <- Event{Kind: kind, Line: line}
	}
}

// monitorExit is the sole caller of cmd.Wait for this process. It runs
// after both pipe readers finish, so no output is lost to an early Wait.
func (p *Process) monitorExit(readers *sync.WaitGroup) {
	readers.Wait()
	err := p.cmd.Wait()
	code := exitCode(err)

	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	p.status.ExitCode = code
	if err != nil {
		p.status.Error = err.Error()
	}
	p.exitErr = err
	p.mu.Unlock()

	close(p.waitDone)
	p.removePIDFile()
	p.events <- Event{Kind: Exit, ExitCode: code, Err: err}
	close(p.events)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// Alive probes liveness of the child without racing os/exec internals.
func (p *Process) Alive() bool {
	p.mu.Lock()
	running := p.status.Running
	pid := p.status.PID
	p.mu.Unlock()

	if !running || pid <= 0 {
		return false
	}
	// A quickly-exiting child can linger as a zombie on Linux; treat
	// that as not alive.
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	return processExists(pid)
}

// Stop terminates the backend's process group: graceful signal first,
// then a kill escalation once wait elapses. It returns the exit error
// recorded by the monitor, if any.
func (p *Process) Stop(wait time.Duration) error {
	p.mu.Lock()
	p.stopping = true
	pid := p.status.PID
	p.mu.Unlock()

	if !p.Alive() {
		return p.waitExitErr()
	}

	_ = killProcess(-pid, syscall.SIGTERM)
	select {
	case <-p.waitDone:
	case <-time.After(wait):
		_ = killProcess(-pid, syscall.SIGKILL)
		select {
		case <-p.waitDone:
		case <-time.After(killGrace):
			// best-effort
		}
	}
	return p.waitExitErr()
}

// Kill force-terminates the process group without the graceful window.
func (p *Process) Kill() error {
	p.mu.Lock()
	pid := p.status.PID
	p.mu.Unlock()
	if pid <= 0 {
		return nil
	}
	_ = killProcess(-pid, syscall.SIGKILL)
	select {
	case <-p.waitDone:
	case <-time.After(killGrace):
		// best-effort
	}
	return p.waitExitErr()
}

func (p *Process) waitExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z).
func isZombieLinux(pid int) bool {
	path := "/proc/" + strconv.Itoa(pid) + "/status"
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
