package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/raylab/nodeguard/internal/config"
	"github.com/raylab/nodeguard/internal/env"
	"github.com/raylab/nodeguard/internal/history"
	"github.com/raylab/nodeguard/internal/history/factory"
	"github.com/raylab/nodeguard/internal/process"
	"github.com/raylab/nodeguard/internal/supervisor"
)

// Agent runs one supervisor per configured program on this node. It owns
// signal fan-out: a single shutdown request stops every program with its own
// stop timeout.
type Agent struct {
	cfg  *config.Config
	log  *slog.Logger
	envs *env.Env
	sink history.Sink

	mu    sync.Mutex
	sups  map[string]*supervisor.Supervisor
	order []string

	runErr  chan error
	wg      sync.WaitGroup
	started bool
}

// New builds an agent from a validated config.
func New(cfg *config.Config, log *slog.Logger) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New("agent: nil config")
	}
	if log == nil {
		log = slog.Default()
	}

	globals, err := cfg.GlobalEnv()
	if err != nil {
		return nil, fmt.Errorf("agent: global env: %w", err)
	}
	var e *env.Env
	if cfg.UseOSEnv {
		e = env.New()
	} else {
		e = env.NewEmptyBase()
	}
	for _, kv := range globals {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			e.Set(kv[:i], kv[i+1:])
		}
	}

	var sink history.Sink
	if cfg.History.Enabled {
		sink, err = factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("agent: history sink: %w", err)
		}
	}

	a := &Agent{
		cfg:    cfg,
		log:    log,
		envs:   e,
		sink:   sink,
		sups:   make(map[string]*supervisor.Supervisor),
		runErr: make(chan error, 1),
	}

	for _, spec := range cfg.Specs() {
		sup, err := supervisor.New(spec)
		if err != nil {
			return nil, err
		}
		sup.SetLogger(log)
		sup.SetEnvMerger(func(s process.Spec) []string { return e.Merge(s.Env) })
		if sink != nil {
			sup.SetHistory(sink)
		}
		a.sups[spec.Name] = sup
		a.order = append(a.order, spec.Name)
	}
	return a, nil
}

// StartAll starts every program in config order. The first spawn failure
// aborts the whole agent: already-started programs are shut down again.
func (a *Agent) StartAll() error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("agent: already started")
	}
	a.started = true
	a.mu.Unlock()

	for _, name := range a.order {
		sup := a.sups[name]
		if err := sup.Start(); err != nil {
			a.log.Error("program failed to start", "program", name, "error", err)
			_ = a.Shutdown()
			return err
		}
		a.wg.Add(1)
		go func(s *supervisor.Supervisor, name string) {
			defer a.wg.Done()
			if err := s.Run(); err != nil {
				a.log.Error("supervisor loop aborted", "program", name, "error", err)
				// Run consumes at most one error; drop the rest so the
				// goroutine never blocks Shutdown's wait.
				select {
				case a.runErr <- err:
				default:
				}
			}
		}(sup, name)
	}
	return nil
}

// Run starts all programs and blocks until ctx is cancelled or a supervisor
// loop fails fatally, then shuts everything down.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.StartAll(); err != nil {
		return err
	}
	var cause error
	select {
	case <-ctx.Done():
	case cause = <-a.runErr:
	}
	if err := a.Shutdown(); err != nil {
		if cause == nil {
			cause = err
		} else {
			cause = errors.Join(cause, err)
		}
	}
	return cause
}

// Shutdown requests a graceful stop of every program concurrently, each with
// its configured stop timeout, and waits for the supervisor loops to drain.
func (a *Agent) Shutdown() error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, name := range a.order {
		sup := a.sups[name]
		wg.Add(1)
		go func(s *supervisor.Supervisor) {
			defer wg.Done()
			if err := s.RequestShutdown(s.Spec().StopTimeout); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(sup)
	}
	wg.Wait()
	a.wg.Wait()

	if a.sink != nil {
		if c, ok := a.sink.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return errors.Join(errs...)
}

// Supervisor returns the supervisor for a program name.
func (a *Agent) Supervisor(name string) (*supervisor.Supervisor, bool) {
	s, ok := a.sups[name]
	return s, ok
}

// Status returns the status of one program.
func (a *Agent) Status(name string) (process.Status, error) {
	sup, ok := a.sups[name]
	if !ok {
		return process.Status{}, fmt.Errorf("agent: unknown program %q", name)
	}
	return sup.Status(), nil
}

// StatusAll returns statuses in config order.
func (a *Agent) StatusAll() []process.Status {
	out := make([]process.Status, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.sups[name].Status())
	}
	return out
}

// StartProgram starts a single stopped program (control API).
func (a *Agent) StartProgram(name string) error {
	sup, ok := a.sups[name]
	if !ok {
		return fmt.Errorf("agent: unknown program %q", name)
	}
	if err := sup.Start(); err != nil {
		return err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := sup.Run(); err != nil {
			a.log.Error("supervisor loop aborted", "program", name, "error", err)
			select {
			case a.runErr <- err:
			default:
			}
		}
	}()
	return nil
}

// StopProgram gracefully stops a single program (control API).
func (a *Agent) StopProgram(name string) error {
	sup, ok := a.sups[name]
	if !ok {
		return fmt.Errorf("agent: unknown program %q", name)
	}
	return sup.RequestShutdown(sup.Spec().StopTimeout)
}
