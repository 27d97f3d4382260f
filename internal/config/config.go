package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/raylab/nodeguard/internal/logger"
	"github.com/raylab/nodeguard/internal/process"
)

// Config is the top-level TOML structure for one agent.
//
//	env = ["RAY_HEAD=10.0.0.2"]
//	env_files = ["/etc/nodeguard/cluster.env"]
//	use_os_env = true
//
//	[log]
//	level = "info"
//	dir = "/var/log/nodeguard"
//
//	[server]
//	listen = "127.0.0.1:8617"
//	base_path = "/api"
//	metrics = true
//
//	[history]
//	enabled = true
//	dsn = "sqlite:///var/lib/nodeguard/history.db"
//
//	[[programs]]
//	name = "ray-worker"
//	command = "ray start --address=${RAY_HEAD}:6379 --block"
//	restart_backoff = "2s"
//	stop_timeout = "10s"
type Config struct {
	Env      []string        `toml:"env" mapstructure:"env"`
	EnvFiles []string        `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool            `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      LogConfig       `toml:"log" mapstructure:"log"`
	Server   ServerConfig    `toml:"server" mapstructure:"server"`
	History  HistoryConfig   `toml:"history" mapstructure:"history"`
	Programs []ProgramConfig `toml:"programs" mapstructure:"programs"`
}

// LogConfig configures the agent's own logger and the default directory for
// child output files.
type LogConfig struct {
	Level string `toml:"level" mapstructure:"level"`
	Color bool   `toml:"color" mapstructure:"color"`
	Dir   string `toml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the embedded control API.
type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	Metrics  bool   `toml:"metrics" mapstructure:"metrics"`
}

// HistoryConfig configures lifecycle event persistence.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// ProgramConfig is one supervised program.
type ProgramConfig struct {
	Name           string        `toml:"name" mapstructure:"name"`
	Command        string        `toml:"command" mapstructure:"command"`
	WorkDir        string        `toml:"workdir" mapstructure:"workdir"`
	Env            []string      `toml:"env" mapstructure:"env"`
	PIDFile        string        `toml:"pidfile" mapstructure:"pidfile"`
	AutoRestart    *bool         `toml:"autorestart" mapstructure:"autorestart"`
	RestartBackoff time.Duration `toml:"restart_backoff" mapstructure:"restart_backoff"`
	StopTimeout    time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
	Log            *LogFiles     `toml:"log" mapstructure:"log"`
}

// LogFiles configures where one program's stdout/stderr go.
type LogFiles struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Clean(path))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks cross-field constraints the decoder cannot.
func (c *Config) Validate() error {
	if len(c.Programs) == 0 {
		return fmt.Errorf("config: at least one [[programs]] entry is required")
	}
	seen := make(map[string]bool, len(c.Programs))
	for i := range c.Programs {
		p := &c.Programs[i]
		spec := p.ToSpec(c.Log.Dir)
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("config: programs[%d]: %w", i, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate program name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// ToSpec converts a program entry to a process spec. defaultLogDir is used
// when the program has no explicit log destination.
func (p *ProgramConfig) ToSpec(defaultLogDir string) process.Spec {
	spec := process.Spec{
		Name:           p.Name,
		Command:        p.Command,
		WorkDir:        p.WorkDir,
		Env:            append([]string(nil), p.Env...),
		PIDFile:        p.PIDFile,
		AutoRestart:    true,
		RestartBackoff: p.RestartBackoff,
		StopTimeout:    p.StopTimeout,
	}
	if p.AutoRestart != nil {
		spec.AutoRestart = *p.AutoRestart
	}
	if p.Log != nil {
		spec.Log = logger.Config{
			Dir:        p.Log.Dir,
			StdoutPath: p.Log.Stdout,
			StderrPath: p.Log.Stderr,
			MaxSizeMB:  p.Log.MaxSizeMB,
			MaxBackups: p.Log.MaxBackups,
			MaxAgeDays: p.Log.MaxAgeDays,
			Compress:   p.Log.Compress,
		}
	} else if defaultLogDir != "" {
		spec.Log = logger.Config{Dir: defaultLogDir}
	}
	return spec
}

// Specs converts every program entry.
func (c *Config) Specs() []process.Spec {
	out := make([]process.Spec, 0, len(c.Programs))
	for i := range c.Programs {
		out = append(out, c.Programs[i].ToSpec(c.Log.Dir))
	}
	return out
}

// GlobalEnv merges env sources in precedence order: OS env (when enabled)
// as base, then env_files in order, then the top-level env list last.
func (c *Config) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	if c.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			m[line[:i]] = line[i+1:]
		}
	}
	return m, nil
}
