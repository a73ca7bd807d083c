//go:build linux

package sidecar

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in a new process group so the
// whole backend tree can be signalled together. Pdeathsig asks the
// kernel to SIGKILL the backend if the launcher itself dies, so no
// orphan keeps the port bound.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
