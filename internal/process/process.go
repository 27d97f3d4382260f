package process

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Process owns exactly one OS child at a time. The supervisor drives the
// lifecycle; this type only provides the mechanics: configure, spawn, signal
// the process group, reap coordination, and liveness probing.
//
// waitDone is closed by whoever reaps the child (the supervisor's monitor
// goroutine); stoppers wait on it instead of calling cmd.Wait themselves so
// there is only ever one waiter per run.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	status    Status
	mu        sync.Mutex
	stopping  bool // Stop has been requested; suppress restarts
	restarts  int
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{}
}

func New(spec Spec) *Process { return &Process{spec: spec} }

func (r *Process) Spec() Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec
}

func (r *Process) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec.Name
}

// ConfigureCmd builds and configures *exec.Cmd for this process using mergedEnv.
// It sets workdir, environment, stdio/logging, and process group attributes.
func (r *Process) ConfigureCmd(mergedEnv []string) *exec.Cmd {
	r.mu.Lock()
	spec := r.spec // copy to avoid holding the lock during I/O
	r.mu.Unlock()

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd)

	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(spec.Name)
		r.ensureLogClosers(outW, errW)
		ow, ew := r.OutErrClosers()
		if ow != nil {
			cmd.Stdout = ow
		} else {
			cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
		if ew != nil {
			cmd.Stderr = ew
		} else {
			cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}
	return cmd
}

// TryStart atomically starts the command and updates internal state and PID file.
func (r *Process) TryStart(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	r.setStarted(cmd)
	// Write PID file synchronously so it is available immediately after Start.
	r.WritePIDFile()
	return nil
}

func (r *Process) setStarted(cmd *exec.Cmd) {
	r.mu.Lock()
	r.cmd = cmd
	r.waitDone = make(chan struct{})
	r.status.Name = r.spec.Name
	r.status.Running = true
	r.status.PID = cmd.Process.Pid
	r.status.StartedAt = time.Now()
	r.status.Restarts = r.restarts
	r.status.LastExit = nil
	r.stopping = false
	r.mu.Unlock()
}

func (r *Process) Cmd() *exec.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd
}

func (r *Process) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// CloseWaitDone signals that the current run has been reaped.
func (r *Process) CloseWaitDone() {
	r.mu.Lock()
	if r.waitDone != nil {
		close(r.waitDone)
		r.waitDone = nil
	}
	r.mu.Unlock()
}

// WaitDoneChan returns the channel closed when the current run is reaped,
// or nil when no run is in flight.
func (r *Process) WaitDoneChan() chan struct{} {
	r.mu.Lock()
	wd := r.waitDone
	r.mu.Unlock()
	return wd
}

// MarkExited records the terminal exit of the current run.
func (r *Process) MarkExited(rec ExitRecord) {
	r.mu.Lock()
	r.status.Running = false
	r.status.StoppedAt = rec.At
	recCopy := rec
	r.status.LastExit = &recCopy
	r.mu.Unlock()
}

func (r *Process) SetStopRequested(v bool) {
	r.mu.Lock()
	r.stopping = v
	r.mu.Unlock()
}

func (r *Process) StopRequested() bool {
	r.mu.Lock()
	v := r.stopping
	r.mu.Unlock()
	return v
}

func (r *Process) IncRestarts() int {
	r.mu.Lock()
	r.restarts++
	v := r.restarts
	r.status.Restarts = v
	r.mu.Unlock()
	return v
}

func (r *Process) Restarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restarts
}

func (r *Process) OutErrClosers() (io.WriteCloser, io.WriteCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outCloser, r.errCloser
}

func (r *Process) ensureLogClosers(stdout, stderr io.WriteCloser) {
	r.mu.Lock()
	if r.outCloser == nil && stdout != nil {
		r.outCloser = stdout
	}
	if r.errCloser == nil && stderr != nil {
		r.errCloser = stderr
	}
	r.mu.Unlock()
}

func (r *Process) CloseWriters() {
	r.mu.Lock()
	if r.outCloser != nil {
		_ = r.outCloser.Close()
		r.outCloser = nil
	}
	if r.errCloser != nil {
		_ = r.errCloser.Close()
		r.errCloser = nil
	}
	r.mu.Unlock()
}

// SignalGroup sends sig to the child's process group.
func (r *Process) SignalGroup(sig syscall.Signal) error {
	pid := r.PID()
	if pid == 0 {
		return nil
	}
	return killProcessGroup(pid, sig)
}

// Snapshot returns a copy of the current status.
func (r *Process) Snapshot() Status {
	r.mu.Lock()
	s := r.status
	r.mu.Unlock()
	return s
}

// DetectAlive probes liveness avoiding races with os/exec internals.
// A reaped-but-unwaited child shows as a zombie on Linux; treat it as dead.
func (r *Process) DetectAlive() bool {
	pid := r.PID()
	if pid == 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	return processExists(pid)
}

// isZombie returns true if /proc/<pid>/status reports a zombie state (Z) on Linux.
func isZombie(pid int) bool {
	path := "/proc/" + strconv.Itoa(pid) + "/status"
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
