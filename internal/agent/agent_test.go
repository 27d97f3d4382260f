package agent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/raylab/nodeguard/internal/config"
)

func requireUnixA(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func waitUntilA(timeout, step time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(step)
	}
	return false
}

func testConfig(programs ...config.ProgramConfig) *config.Config {
	return &config.Config{UseOSEnv: true, Programs: programs}
}

func TestAgent_StartAllAndShutdown(t *testing.T) {
	requireUnixA(t)
	off := false
	a, err := New(testConfig(
		config.ProgramConfig{Name: "p1", Command: "sleep 30", AutoRestart: &off, StopTimeout: 2 * time.Second},
		config.ProgramConfig{Name: "p2", Command: "sleep 30", AutoRestart: &off, StopTimeout: 2 * time.Second},
	), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.StartAll(); err != nil {
		t.Fatalf("start all: %v", err)
	}
	if !waitUntilA(2*time.Second, 20*time.Millisecond, func() bool {
		sts := a.StatusAll()
		return len(sts) == 2 && sts[0].Running && sts[1].Running
	}) {
		t.Fatalf("programs not running: %+v", a.StatusAll())
	}
	if err := a.StartAll(); err == nil {
		t.Fatal("second StartAll should fail")
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	for _, st := range a.StatusAll() {
		if st.Running {
			t.Fatalf("%s still running after shutdown", st.Name)
		}
	}
}

func TestAgent_StartAllRollsBackOnSpawnFailure(t *testing.T) {
	requireUnixA(t)
	off := false
	a, err := New(testConfig(
		config.ProgramConfig{Name: "good", Command: "sleep 30", AutoRestart: &off, StopTimeout: 2 * time.Second},
		config.ProgramConfig{Name: "broken", Command: "/nonexistent/binary-xyz", AutoRestart: &off},
	), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.StartAll(); err == nil {
		t.Fatal("expected spawn failure")
	}
	// The program started before the failure must have been rolled back.
	st, err := a.Status("good")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Running {
		t.Fatal("good program left running after failed StartAll")
	}
}

func TestAgent_RunStopsOnContextCancel(t *testing.T) {
	requireUnixA(t)
	off := false
	a, err := New(testConfig(
		config.ProgramConfig{Name: "p", Command: "sleep 30", AutoRestart: &off, StopTimeout: 2 * time.Second},
	), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	if !waitUntilA(2*time.Second, 20*time.Millisecond, func() bool {
		st, _ := a.Status("p")
		return st.Running
	}) {
		t.Fatal("program not running")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestAgent_StartStopProgram(t *testing.T) {
	requireUnixA(t)
	off := false
	a, err := New(testConfig(
		config.ProgramConfig{Name: "ctl", Command: "sleep 30", AutoRestart: &off, StopTimeout: 2 * time.Second},
	), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.StartProgram("ctl"); err != nil {
		t.Fatalf("start program: %v", err)
	}
	if !waitUntilA(2*time.Second, 20*time.Millisecond, func() bool {
		st, _ := a.Status("ctl")
		return st.Running
	}) {
		t.Fatal("program not running")
	}
	if err := a.StopProgram("ctl"); err != nil {
		t.Fatalf("stop program: %v", err)
	}
	st, _ := a.Status("ctl")
	if st.Running {
		t.Fatal("still running after StopProgram")
	}

	if err := a.StartProgram("nope"); err == nil {
		t.Fatal("expected error for unknown program")
	}
	if err := a.StopProgram("nope"); err == nil {
		t.Fatal("expected error for unknown program")
	}
	if _, err := a.Status("nope"); err == nil {
		t.Fatal("expected error for unknown program")
	}
}

// Every fatal loop error beyond the first is dropped; none of them may leave
// a goroutine blocked where Shutdown waits on it.
func TestAgent_RepeatedFatalLoopErrorsDoNotWedgeShutdown(t *testing.T) {
	requireUnixA(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "flaky.sh")
	writeScript := func() {
		t.Helper()
		if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
			t.Fatalf("write script: %v", err)
		}
	}
	a, err := New(testConfig(
		config.ProgramConfig{Name: "flaky", Command: script, RestartBackoff: 100 * time.Millisecond, StopTimeout: time.Second},
	), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for i := 0; i < 3; i++ {
		writeScript()
		if err := a.StartProgram("flaky"); err != nil {
			t.Fatalf("cycle %d: start: %v", i, err)
		}
		// The spawn already happened; removing the script makes the respawn
		// after the crash fail, aborting the loop with a fatal error.
		if err := os.Remove(script); err != nil {
			t.Fatalf("cycle %d: remove script: %v", i, err)
		}
		if !waitUntilA(3*time.Second, 20*time.Millisecond, func() bool {
			st, _ := a.Status("flaky")
			return st.State == "stopped" && !st.Running
		}) {
			t.Fatalf("cycle %d: loop did not abort", i)
		}
	}

	done := make(chan error, 1)
	go func() { done <- a.Shutdown() }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown wedged after repeated fatal loop errors")
	}
}

func TestAgent_NilConfig(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
