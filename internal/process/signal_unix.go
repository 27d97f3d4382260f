//go:build !windows

package process

import "syscall"

// killProcessGroup signals the whole process group of pid.
func killProcessGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// processExists checks whether a process with the given pid is present.
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
