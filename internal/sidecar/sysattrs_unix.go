//go:build !windows && !linux

package sidecar

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in a new process group for
// group signaling.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
