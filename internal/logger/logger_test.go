package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): got %v want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriters_DefaultPathsFromDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW, err := c.Writers("ray-worker")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatal("expected both writers when dir is set")
	}
	if _, err := outW.Write([]byte("out\n")); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errW.Write([]byte("err\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()

	if b, err := os.ReadFile(filepath.Join(dir, "ray-worker.stdout.log")); err != nil || len(b) == 0 {
		t.Fatalf("stdout file: %v (%d bytes)", err, len(b))
	}
	if b, err := os.ReadFile(filepath.Join(dir, "ray-worker.stderr.log")); err != nil || len(b) == 0 {
		t.Fatalf("stderr file: %v (%d bytes)", err, len(b))
	}
}

func TestWriters_ExplicitPathsWin(t *testing.T) {
	dir := t.TempDir()
	c := Config{
		Dir:        dir,
		StdoutPath: filepath.Join(dir, "custom-out.log"),
	}
	outW, errW, err := c.Writers("x")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if _, err := outW.Write([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	_ = outW.Close()
	_ = errW.Close()
	if _, err := os.Stat(filepath.Join(dir, "custom-out.log")); err != nil {
		t.Fatalf("explicit stdout path not used: %v", err)
	}
}

func TestWriters_NoDestination(t *testing.T) {
	var c Config
	outW, errW, err := c.Writers("x")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatal("expected nil writers without any destination")
	}
}

func TestNewAgentLogger_LevelsAndOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewAgentLogger(&buf, slog.LevelWarn, false)
	log.Info("hidden")
	log.Warn("visible", "program", "ray-worker")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("info line emitted at warn level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "program=ray-worker") {
		t.Fatalf("warn line missing attrs: %q", out)
	}
}

func TestNewAgentLogger_ColorHandler(t *testing.T) {
	var buf bytes.Buffer
	log := NewAgentLogger(&buf, slog.LevelInfo, true)
	log.Error("boom")
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected ANSI escape in colored output: %q", buf.String())
	}
}
