package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start when the supervisor is not in
	// the stopped state. The existing child is left untouched.
	ErrAlreadyRunning = errors.New("supervisor: already running")

	// ErrKillFailed is returned when the forced kill did not terminate the
	// child within the extra grace period. The at-most-one-live-child
	// invariant can no longer be guaranteed; callers must treat this as fatal.
	ErrKillFailed = errors.New("supervisor: child survived forced kill")
)

// SpawnError reports that the child process could not be created (missing
// binary, permission denied). It is fatal and never retried.
type SpawnError struct {
	Name    string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("supervisor %q: spawn %q: %v", e.Name, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StateError reports an operation invoked from a state that does not permit
// it. These are usage errors and are never retried internally. Err carries
// the matching sentinel so errors.Is keeps working for callers.
type StateError struct {
	Op    string
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("supervisor: cannot %s while %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error { return e.Err }
