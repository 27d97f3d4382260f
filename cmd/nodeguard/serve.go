package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/raylab/nodeguard"
)

// runServe is the long-running agent entrypoint: load config, build the
// agent, expose the control API, and run until a termination signal.
func runServe(f *ServeFlags) error {
	cfg, err := nodeguard.LoadConfig(f.ConfigPath)
	if err != nil {
		return err
	}

	log := nodeguard.NewAgentLogger(cfg.Log.Level, cfg.Log.Color)

	if err := nodeguard.RegisterMetricsDefault(); err != nil {
		return err
	}

	agt, err := nodeguard.NewAgent(cfg, log)
	if err != nil {
		return err
	}

	if cfg.Server.Listen != "" {
		srv, err := nodeguard.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, cfg.Server.Metrics, agt)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("control API listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	}

	// The agent fans a single relayed signal out to every program.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("agent starting", "programs", len(cfg.Programs))
	return agt.Run(ctx)
}
