package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/raylab/nodeguard/internal/history"
	"github.com/raylab/nodeguard/internal/metrics"
	"github.com/raylab/nodeguard/internal/process"
)

// DefaultKillGrace bounds how long the supervisor waits for the kernel to
// deliver a forced kill before declaring ErrKillFailed.
const DefaultKillGrace = 2 * time.Second

// Supervisor keeps exactly one instance of a configured command running,
// relaying termination intent and restarting after unexpected exits with a
// fixed backoff, until explicitly told to stop.
//
// Lock hierarchy: mu (state) before the process's internal lock. The monitor
// goroutine is the only caller of cmd.Wait for a given run; stoppers wait on
// the process waitDone channel instead.
type Supervisor struct {
	spec     process.Spec
	proc     *process.Process
	log      *slog.Logger
	sinks    []history.Sink
	mergeEnv func(process.Spec) []string

	mu        sync.Mutex
	state     State
	shutdown  chan struct{} // closed when a shutdown is requested
	stopped   chan struct{} // closed when the owning stop completes
	killGrace time.Duration

	forceKilled atomic.Bool // set when this run was escalated to SIGKILL

	// exitCh is replaced for every run so a reaper delivering late can never
	// feed a stale record into a newer run's loop.
	exitCh chan process.ExitRecord
}

// New builds a supervisor for spec. The spec is normalized and treated as
// immutable afterwards.
func New(spec process.Spec) (*Supervisor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec.Normalize()
	return &Supervisor{
		spec:      spec,
		proc:      process.New(spec),
		log:       slog.Default().With("program", spec.Name),
		mergeEnv:  func(s process.Spec) []string { return s.Env },
		state:     StateStopped,
		shutdown:  make(chan struct{}),
		killGrace: DefaultKillGrace,
		exitCh:    make(chan process.ExitRecord, 1),
	}, nil
}

// SetLogger replaces the lifecycle logger. Call before Start.
func (s *Supervisor) SetLogger(l *slog.Logger) {
	if l != nil {
		s.log = l.With("program", s.spec.Name)
	}
}

// SetHistory configures history sinks. Call before Start.
func (s *Supervisor) SetHistory(sinks ...history.Sink) {
	s.sinks = append([]history.Sink(nil), sinks...)
}

// SetEnvMerger installs the function composing the child environment.
// Call before Start.
func (s *Supervisor) SetEnvMerger(f func(process.Spec) []string) {
	if f != nil {
		s.mergeEnv = f
	}
}

// SetKillGrace overrides the post-SIGKILL grace window. Call before Start.
func (s *Supervisor) SetKillGrace(d time.Duration) {
	if d > 0 {
		s.killGrace = d
	}
}

func (s *Supervisor) Spec() process.Spec { return s.spec }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a point-in-time snapshot.
func (s *Supervisor) Status() process.Status {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	st := s.proc.Snapshot()
	st.Name = s.spec.Name
	st.State = state.String()
	st.Restarts = s.proc.Restarts()
	st.Running = state == StateRunning && s.proc.DetectAlive()
	return st
}

// Start spawns the child. It may only be called from the stopped state;
// ErrAlreadyRunning is returned otherwise. A pidfile owned by a live process
// refuses the start. Spawn failures are fatal: the error is returned
// immediately and the state remains stopped.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return &StateError{Op: "start", State: s.state, Err: ErrAlreadyRunning}
	}
	if s.spec.PIDFile != "" && process.PIDFileAlive(s.spec.PIDFile) {
		return &SpawnError{
			Name:    s.spec.Name,
			Command: s.spec.Command,
			Err:     fmt.Errorf("pidfile %s is owned by a live process", s.spec.PIDFile),
		}
	}
	// Re-arm the shutdown channel if a previous stop consumed it.
	select {
	case <-s.shutdown:
		s.shutdown = make(chan struct{})
	default:
	}
	s.proc.SetStopRequested(false)
	return s.spawnLocked(false)
}

// spawnLocked starts one child run. Caller holds s.mu.
func (s *Supervisor) spawnLocked(isRestart bool) error {
	s.setStateLocked(StateStarting)

	env := s.mergeEnv(s.spec)
	cmd := s.proc.ConfigureCmd(env)
	if err := s.proc.TryStart(cmd); err != nil {
		s.setStateLocked(StateStopped)
		return &SpawnError{Name: s.spec.Name, Command: s.spec.Command, Err: err}
	}
	s.forceKilled.Store(false)
	s.setStateLocked(StateRunning)

	// Fresh channel per run: the previous run's reaper keeps its own.
	exitCh := make(chan process.ExitRecord, 1)
	s.exitCh = exitCh

	pid := s.proc.PID()
	if isRestart {
		n := s.proc.IncRestarts()
		metrics.IncRestart(s.spec.Name)
		s.log.Info("child restarted", "pid", pid, "restarts", n)
		s.persist(history.EventRestart, StateRunning)
	} else {
		s.log.Info("child started", "pid", pid)
		s.persist(history.EventStart, StateRunning)
	}
	metrics.IncStart(s.spec.Name)

	go s.monitor(cmd, exitCh)
	return nil
}

// monitor reaps exactly one run and publishes its exit record on that run's
// channel.
func (s *Supervisor) monitor(cmd *exec.Cmd, exitCh chan<- process.ExitRecord) {
	started := s.proc.Snapshot().StartedAt
	err := cmd.Wait()
	rec := process.ClassifyExit(err, s.forceKilled.Load())
	s.proc.MarkExited(rec)
	s.proc.CloseWriters()
	s.proc.CloseWaitDone()
	if !started.IsZero() {
		metrics.ObserveUptime(s.spec.Name, rec.At.Sub(started).Seconds())
	}
	exitCh <- rec
}

// Run is the blocking supervisory loop. It waits for child exits; when a
// shutdown has been requested it returns nil, otherwise it records the exit,
// waits the configured backoff and spawns a new child. Restarts are unbounded
// with fixed backoff. Spawn failures during a restart abort the loop.
func (s *Supervisor) Run() error {
	for {
		s.mu.Lock()
		shutdown := s.shutdown
		exitCh := s.exitCh
		s.mu.Unlock()

		select {
		case <-shutdown:
			return nil

		case rec := <-exitCh:
			if s.shuttingDown() {
				return nil
			}
			s.observeUnexpectedExit(rec)

			if !s.spec.AutoRestart {
				s.mu.Lock()
				s.setStateLocked(StateStopped)
				s.mu.Unlock()
				s.proc.RemovePIDFile()
				s.persist(history.EventStop, StateStopped)
				return nil
			}

			s.mu.Lock()
			if s.state == StateStopping {
				s.mu.Unlock()
				return nil
			}
			s.setStateLocked(StateRestarting)
			s.mu.Unlock()

			// Fixed backoff to avoid hot-looping on a fast-crashing child.
			// The wait is cancellable by a shutdown request.
			t := time.NewTimer(s.spec.RestartBackoff)
			select {
			case <-t.C:
			case <-shutdown:
				if !t.Stop() {
					<-t.C
				}
				return nil
			}

			s.mu.Lock()
			if s.state != StateRestarting {
				// Shutdown won the race during backoff.
				s.mu.Unlock()
				return nil
			}
			err := s.spawnLocked(true)
			s.mu.Unlock()
			if err != nil {
				s.log.Error("respawn failed", "error", err)
				s.proc.RemovePIDFile()
				return err
			}
		}
	}
}

func (s *Supervisor) observeUnexpectedExit(rec process.ExitRecord) {
	metrics.IncUnexpectedExit(s.spec.Name)
	args := []any{"reason", string(rec.Reason)}
	if rec.Code != nil {
		args = append(args, "exit_code", *rec.Code)
	}
	s.log.Warn("child exited unexpectedly", args...)
	s.persist(history.EventExit, StateRestarting)
}

// RequestShutdown sends a graceful termination signal to the child, waits up
// to timeout for it to exit, and escalates to a forced kill. It is
// idempotent: concurrent or repeated calls while already stopping wait for
// the first caller and perform no second kill attempt. After it returns
// (without ErrKillFailed) the child is no longer running.
func (s *Supervisor) RequestShutdown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.spec.StopTimeout
	}

	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return nil
	case StateStopping:
		done := s.stopped
		s.mu.Unlock()
		if done != nil {
			<-done
		}
		return nil
	}
	s.setStateLocked(StateStopping)
	s.stopped = make(chan struct{})
	done := s.stopped
	// Cancel any pending backoff wait in Run.
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
	s.proc.SetStopRequested(true)
	wd := s.proc.WaitDoneChan()
	pid := s.proc.PID()
	s.mu.Unlock()

	err := s.terminate(wd, pid, timeout)

	s.mu.Lock()
	s.setStateLocked(StateStopped)
	close(done)
	s.mu.Unlock()

	if err == nil {
		s.proc.RemovePIDFile()
		metrics.IncStop(s.spec.Name)
		s.log.Info("shutdown complete")
		s.persist(history.EventStop, StateStopped)
	}
	return err
}

// terminate drives SIGTERM -> wait -> SIGKILL -> bounded grace for one run.
// wd is nil when no child is live (e.g. shutdown during backoff).
func (s *Supervisor) terminate(wd chan struct{}, pid int, timeout time.Duration) error {
	if wd == nil || pid == 0 {
		return nil
	}

	_ = s.proc.SignalGroup(syscall.SIGTERM)
	select {
	case <-wd:
		return nil
	case <-time.After(timeout):
	}

	// Graceful window elapsed; exactly one forced-kill attempt.
	s.forceKilled.Store(true)
	metrics.IncForcedKill(s.spec.Name)
	s.log.Warn("graceful stop timed out, sending SIGKILL", "pid", pid, "timeout", timeout)
	_ = s.proc.SignalGroup(syscall.SIGKILL)

	select {
	case <-wd:
		return nil
	case <-time.After(s.killGrace):
	}
	if s.proc.DetectAlive() {
		return fmt.Errorf("%w: pid %d", ErrKillFailed, pid)
	}
	return nil
}

func (s *Supervisor) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStopping || (s.state == StateStopped && s.proc.StopRequested())
}

// setStateLocked records a transition. Caller holds s.mu.
func (s *Supervisor) setStateLocked(newState State) {
	old := s.state
	if old == newState {
		return
	}
	s.state = newState
	metrics.RecordStateTransition(s.spec.Name, old.String(), newState.String())
	metrics.SetCurrentState(s.spec.Name, old.String(), false)
	metrics.SetCurrentState(s.spec.Name, newState.String(), true)
	s.log.Debug("state transition", "from", old.String(), "to", newState.String())
}

// persist sends a lifecycle event to the configured sinks. The state is
// passed explicitly because callers may hold s.mu.
func (s *Supervisor) persist(t history.EventType, state State) {
	if len(s.sinks) == 0 {
		return
	}
	now := time.Now().UTC()
	st := s.proc.Snapshot()
	rec := history.Record{
		Name:      s.spec.Name,
		PID:       st.PID,
		State:     state.String(),
		UpdatedAt: now,
	}
	if st.LastExit != nil {
		rec.ExitCode = st.LastExit.Code
		rec.ExitReason = string(st.LastExit.Reason)
	}
	evt := history.Event{Type: t, OccurredAt: now, Record: rec}
	for _, h := range s.sinks {
		_ = h.Send(context.Background(), evt)
	}
}
