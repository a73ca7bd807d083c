package reaper

import (
	"context"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is one enumeration candidate.
type ProcessInfo struct {
	PID     int32
	Name    string   // executable base name
	Cmdline []string // argv as spawned
}

// Enumerator lists candidate processes on the host.
type Enumerator interface {
	Snapshot(ctx context.Context) ([]ProcessInfo, error)
}

// Terminator ends processes by pid, gracefully first.
type Terminator interface {
	Terminate(pid int32) error
	Kill(pid int32) error
	Exists(pid int32) bool
}

type gopsEnumerator struct{}

func (gopsEnumerator) Snapshot(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		cmdline, err := p.CmdlineSliceWithContext(ctx)
		if err != nil {
			cmdline = nil
		}
		infos = append(infos, ProcessInfo{PID: p.Pid, Name: name, Cmdline: cmdline})
	}
	return infos, nil
}

type gopsTerminator struct{}

func (gopsTerminator) Terminate(pid int32) error {
	p, err := gopsproc.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Terminate()
}

func (gopsTerminator) Kill(pid int32) error {
	p, err := gopsproc.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func (gopsTerminator) Exists(pid int32) bool {
	ok, err := gopsproc.PidExists(pid)
	return err == nil && ok
}
