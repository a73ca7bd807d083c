//go:build !windows

package sidecar

import "syscall"

// killProcess sends a signal to a Unix process. A negative pid targets
// the whole process group.
func killProcess(pid int, signal syscall.Signal) error {
	return syscall.Kill(pid, signal)
}

// processExists checks if a process exists.
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
