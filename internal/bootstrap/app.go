// Package bootstrap wires configuration, logging and the runner lifecycle
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"condor_trader/internal/config"
	"condor_trader/internal/core"
	"condor_trader/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// App holds the core application dependencies
type App struct {
	Cfg    *config.Config
	Logger core.ILogger
}

// NewApp bootstraps configuration and logging
func NewApp(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	return &App{Cfg: cfg, Logger: logger}, nil
}

// Runner is a component that runs until its context is cancelled
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Run starts all runners and blocks until a termination signal arrives or
// one of them fails.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application")
	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("application stopped with error", "error", err.Error())
		return err
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}
