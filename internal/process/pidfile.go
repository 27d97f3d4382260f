package process

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WritePIDFile records the child's pid when the spec configures a pidfile.
func (r *Process) WritePIDFile() {
	r.mu.Lock()
	pidFile := r.spec.PIDFile
	pid := 0
	if r.cmd != nil && r.cmd.Process != nil {
		pid = r.cmd.Process.Pid
	}
	r.mu.Unlock()

	if pidFile == "" || pid == 0 {
		return
	}
	_ = os.MkdirAll(filepath.Dir(pidFile), 0o750)
	_ = os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o600)
}

// RemovePIDFile best-effort.
func (r *Process) RemovePIDFile() {
	r.mu.Lock()
	pidFile := r.spec.PIDFile
	r.mu.Unlock()

	if pidFile == "" {
		return
	}
	_ = os.Remove(pidFile)
}

// ReadPIDFile parses the pid stored at path.
func ReadPIDFile(path string) (int, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// PIDFileAlive reports whether the pid stored at path refers to a live
// process that was started no later than the pidfile was written. A pid that
// exists but started after the file's mtime is a recycled pid and the file is
// considered stale.
func PIDFileAlive(path string) bool {
	pid, err := ReadPIDFile(path)
	if err != nil || pid <= 0 {
		return false
	}
	if !processExists(pid) {
		return false
	}
	fi, err := os.Stat(filepath.Clean(path))
	if err != nil {
		return true // pid is live; without mtime we cannot call it stale
	}
	started := getProcStartUnix(pid)
	if started == 0 {
		return true
	}
	// Allow one second of slack for clock/tick rounding.
	return started <= fi.ModTime().Unix()+1
}
