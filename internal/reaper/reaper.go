package reaper

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/openautonote/usher/internal/sidecar"
)

// Target describes the stale backend processes to hunt before launch.
type Target struct {
	Name    string        // executable base name, e.g. "api-server"
	PIDFile string        // pidfile from a previous launch, checked first
	Marker  []string      // argv tokens scoping name matches, e.g. ["--port","8964"]
	Grace   time.Duration // wait between terminate and kill
}

// Reaper finds and terminates backend processes left behind by earlier
// runs. Every failure is absorbed: a reap that cannot proceed must
// never block the launch that requested it.
type Reaper struct {
	target Target
	enum   Enumerator
	term   Terminator
}

const defaultGrace = 500 * time.Millisecond

func New(target Target) *Reaper {
	return NewWithBackends(target, gopsEnumerator{}, gopsTerminator{})
}

// NewWithBackends wires explicit enumeration/termination capabilities.
func NewWithBackends(target Target, enum Enumerator, term Terminator) *Reaper {
	if target.Grace <= 0 {
		target.Grace = defaultGrace
	}
	return &Reaper{target: target, enum: enum, term: term}
}

// Reap terminates stale backends and reports how many were signalled.
// The pidfile from the previous launch is consulted first; a host-wide
// scan by name and marker catches anything that outlived its pidfile.
func (r *Reaper) Reap(ctx context.Context) int {
	self := int32(os.Getpid())
	parent := int32(os.Getppid())

	victims := make([]int32, 0, 4)
	if pid, ok := r.pidfileVictim(); ok && pid != self && pid != parent {
		victims = append(victims, pid)
	}

	infos, err := r.enum.Snapshot(ctx)
	if err != nil {
		slog.Debug("reaper enumeration failed", "error", err)
	}
	for _, info := range infos {
		if info.PID == self || info.PID == parent || containsPID(victims, info.PID) {
			continue
		}
		if r.matches(info) {
			victims = append(victims, info.PID)
		}
	}
	if len(victims) == 0 {
		return 0
	}

	for _, pid := range victims {
		if err := r.term.Terminate(pid); err != nil {
			slog.Debug("terminate stale backend", "pid", pid, "error", err)
		}
	}
	r.waitGrace(ctx)
	for _, pid := range victims {
		if r.term.Exists(pid) {
			if err := r.term.Kill(pid); err != nil {
				slog.Debug("kill stale backend", "pid", pid, "error", err)
			}
		}
	}

	slog.Info("reaped stale backends", "name", r.target.Name, "count", len(victims))
	return len(victims)
}

// pidfileVictim resolves the previous launch's pid, verifying the
// recorded start time so a recycled PID is not killed by mistake. The
// pidfile is consumed either way.
func (r *Reaper) pidfileVictim() (int32, bool) {
	path := r.target.PIDFile
	if path == "" {
		return 0, false
	}
	pid, _, startUnix, err := sidecar.ReadPIDFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("stale pidfile unreadable", "path", path, "error", err)
			_ = os.Remove(path)
		}
		return 0, false
	}
	_ = os.Remove(path)
	if pid <= 0 || !r.term.Exists(int32(pid)) {
		return 0, false
	}
	if startUnix > 0 {
		if cur := sidecar.StartUnix(pid); cur > 0 && cur != startUnix {
			return 0, false // PID reused; not our process
		}
	}
	return int32(pid), true
}

func (r *Reaper) matches(info ProcessInfo) bool {
	if !sameBaseName(info.Name, r.target.Name) {
		return false
	}
	if len(r.target.Marker) == 0 {
		return true
	}
	return containsSequence(info.Cmdline, r.target.Marker)
}

func (r *Reaper) waitGrace(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.target.Grace):
	}
}

func containsPID(pids []int32, pid int32) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}
	return false
}
