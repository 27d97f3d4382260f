//go:build !windows

package supervisor

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/raylab/nodeguard/internal/process"
)

// Uses SIGUSR1 so the test binary itself is never terminated.
func TestRelaySignals_StopsChildOnce(t *testing.T) {
	requireUnix(t)
	s := mustNew(t, process.Spec{
		Name:    "relay",
		Command: "sleep 30",
	})
	cancel := s.RelaySignals(2*time.Second, syscall.SIGUSR1)
	defer cancel()

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("find self: %v", err)
	}
	if err := p.Signal(syscall.SIGUSR1); err != nil {
		t.Fatalf("signal self: %v", err)
	}
	// A second signal while stopping must be ignored, not kill twice.
	_ = p.Signal(syscall.SIGUSR1)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop the supervisor")
	}
	if !waitUntil(2*time.Second, 20*time.Millisecond, func() bool {
		return s.State() == StateStopped
	}) {
		t.Fatalf("expected stopped after relayed signal, got %s", s.State())
	}
}

func TestRelaySignals_CancelUnregisters(t *testing.T) {
	requireUnix(t)
	s := mustNew(t, process.Spec{
		Name:    "relay-cancel",
		Command: "sleep 30",
	})
	cancel := s.RelaySignals(time.Second, syscall.SIGUSR2)
	cancel()
	cancel() // repeat is safe

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = s.RequestShutdown(2 * time.Second) }()

	if !waitUntil(time.Second, 10*time.Millisecond, func() bool {
		return s.Status().Running
	}) {
		t.Fatal("child not running")
	}
	if s.State() != StateRunning {
		t.Fatalf("expected running after cancelled relay, got %s", s.State())
	}
}
