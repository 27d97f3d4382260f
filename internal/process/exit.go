package process

import (
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// ExitReason classifies how a child left.
type ExitReason string

const (
	// ExitNormal: the child exited on its own (any exit code).
	ExitNormal ExitReason = "normal"
	// ExitSignaled: the child was terminated by a signal it did not request.
	ExitSignaled ExitReason = "signaled"
	// ExitTimeoutKilled: the supervisor force-killed the child after the
	// graceful stop window elapsed.
	ExitTimeoutKilled ExitReason = "timeout_killed"
)

// ExitRecord captures one child exit. It is ephemeral: produced when the
// monitor reaps the child, consumed by the restart decision and history sinks.
type ExitRecord struct {
	Code   *int       `json:"exit_code,omitempty"` // nil when killed by signal
	At     time.Time  `json:"at"`
	Reason ExitReason `json:"reason"`
}

// ClassifyExit builds an ExitRecord from the error returned by cmd.Wait.
// forceKilled tells the classifier that the supervisor escalated to SIGKILL,
// which takes precedence over plain signal classification.
func ClassifyExit(waitErr error, forceKilled bool) ExitRecord {
	rec := ExitRecord{At: time.Now()}

	var ee *exec.ExitError
	if waitErr == nil {
		code := 0
		rec.Code = &code
		rec.Reason = ExitNormal
		return rec
	}
	if errors.As(waitErr, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			switch {
			case ws.Signaled() && forceKilled:
				rec.Reason = ExitTimeoutKilled
			case ws.Signaled():
				rec.Reason = ExitSignaled
			default:
				code := ws.ExitStatus()
				rec.Code = &code
				rec.Reason = ExitNormal
			}
			return rec
		}
		code := ee.ExitCode()
		rec.Code = &code
		rec.Reason = ExitNormal
		return rec
	}
	// Wait itself failed; treat like a signaled death so the restart policy
	// still applies.
	rec.Reason = ExitSignaled
	return rec
}
