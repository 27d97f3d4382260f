package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/raylab/nodeguard/internal/logger"
)

// Default policy values applied by Spec.Normalize.
const (
	DefaultRestartBackoff = 2 * time.Second
	DefaultStopTimeout    = 5 * time.Second
)

// Spec describes one supervised program. It is immutable once handed to a
// supervisor: mutate a copy and build a new supervisor to change it.
type Spec struct {
	Name           string        `json:"name" mapstructure:"name"`
	Command        string        `json:"command" mapstructure:"command"`                 // command line (shell or argv form)
	WorkDir        string        `json:"work_dir" mapstructure:"work_dir"`               // optional working dir
	Env            []string      `json:"env" mapstructure:"env"`                         // extra K=V entries
	PIDFile        string        `json:"pid_file" mapstructure:"pid_file"`               // optional pidfile path
	AutoRestart    bool          `json:"auto_restart" mapstructure:"auto_restart"`       // restart after unexpected exits
	RestartBackoff time.Duration `json:"restart_backoff" mapstructure:"restart_backoff"` // fixed wait before each restart
	StopTimeout    time.Duration `json:"stop_timeout" mapstructure:"stop_timeout"`       // graceful wait before forced kill
	Log            logger.Config `json:"log" mapstructure:"log"`                         // child stdout/stderr destinations
}

// Validate reports configuration errors that would make the spec unrunnable.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("spec: name is required")
	}
	if strings.ContainsAny(s.Name, " \t\n\r/\\") {
		return fmt.Errorf("spec %q: name contains invalid characters", s.Name)
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("spec %q: command is required", s.Name)
	}
	if s.RestartBackoff < 0 {
		return fmt.Errorf("spec %q: restart_backoff cannot be negative", s.Name)
	}
	if s.StopTimeout < 0 {
		return fmt.Errorf("spec %q: stop_timeout cannot be negative", s.Name)
	}
	return nil
}

// Normalize fills in defaults for zero-valued policy fields.
func (s *Spec) Normalize() {
	if s.RestartBackoff <= 0 {
		s.RestartBackoff = DefaultRestartBackoff
	}
	if s.StopTimeout <= 0 {
		s.StopTimeout = DefaultStopTimeout
	}
}

// BuildCommand constructs an *exec.Cmd for the given spec.Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// If after is wrapped in single or double quotes, strip one pair so that
			// we pass the actual script to the shell (the outer quotes would otherwise
			// inhibit parsing/redirection inside the script).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
