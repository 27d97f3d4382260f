// Package nodeguard keeps configured node-role commands (for example a Ray
// head or worker process) running on one machine: spawn, relay termination
// signals, restart after unexpected exits with a fixed backoff, and expose
// status over an embeddable HTTP API.
package nodeguard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/raylab/nodeguard/internal/agent"
	cfg "github.com/raylab/nodeguard/internal/config"
	"github.com/raylab/nodeguard/internal/history"
	"github.com/raylab/nodeguard/internal/history/factory"
	"github.com/raylab/nodeguard/internal/logger"
	"github.com/raylab/nodeguard/internal/metrics"
	"github.com/raylab/nodeguard/internal/process"
	iapi "github.com/raylab/nodeguard/internal/server"
	"github.com/raylab/nodeguard/internal/supervisor"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Spec = process.Spec

type Status = process.Status

type ExitRecord = process.ExitRecord

type State = supervisor.State

const (
	StateStopped    = supervisor.StateStopped
	StateStarting   = supervisor.StateStarting
	StateRunning    = supervisor.StateRunning
	StateStopping   = supervisor.StateStopping
	StateRestarting = supervisor.StateRestarting
)

var (
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrKillFailed     = supervisor.ErrKillFailed
)

type SpawnError = supervisor.SpawnError

// Supervisor owns the lifecycle of one supervised command.
type Supervisor = supervisor.Supervisor

// NewSupervisor builds a supervisor for one command spec.
func NewSupervisor(spec Spec) (*Supervisor, error) { return supervisor.New(spec) }

// Config and agent facade.

type Config = cfg.Config

type ProgramConfig = cfg.ProgramConfig

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

type Agent = agent.Agent

func NewAgent(c *Config, log *slog.Logger) (*Agent, error) { return agent.New(c, log) }

// RunAgent is the convenience entrypoint used by the CLI: it runs all
// configured programs until ctx is cancelled.
func RunAgent(ctx context.Context, c *Config, log *slog.Logger) error {
	a, err := agent.New(c, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// History facade.

type HistorySink = history.Sink

func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts an HTTP server exposing the control API for agt.
func NewHTTPServer(addr, basePath string, withMetrics bool, agt *Agent) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, withMetrics, agt)
}

// NewHTTPHandler returns an embeddable handler for the control API.
func NewHTTPHandler(agt *Agent, basePath string, withMetrics bool) http.Handler {
	return iapi.NewRouter(agt, basePath, withMetrics).Handler()
}

// Metrics helpers.

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

// NewAgentLogger builds the structured logger used for lifecycle log lines.
func NewAgentLogger(level string, color bool) *slog.Logger {
	return logger.NewAgentLogger(nil, logger.ParseLevel(level), color)
}
