//go:build windows

package process

import "syscall"

const processTerminate = 0x0001
const processQueryInformation = 0x0400

// killProcessGroup terminates the process by PID. Windows has no Unix-style
// process groups or signals; both SIGTERM and SIGKILL map to TerminateProcess.
func killProcessGroup(pid int, sig syscall.Signal) error {
	if pid < 0 {
		pid = -pid
	}
	if pid == 0 {
		return nil
	}
	if sig == 0 {
		if processExists(pid) {
			return nil
		}
		return syscall.ESRCH
	}
	h, err := syscall.OpenProcess(processTerminate, false, uint32(pid))
	if err != nil {
		// Process is already gone; treat as terminated.
		return nil
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	return syscall.TerminateProcess(h, 1)
}

// processExists checks whether a process with the given pid is present.
func processExists(pid int) bool {
	h, err := syscall.OpenProcess(processQueryInformation, false, uint32(pid))
	if err != nil {
		return false
	}
	_ = syscall.CloseHandle(h)
	return true
}
