// Package daemon coordinates the background services and enforces
// single-instance execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"wildcut/internal/api"
	"wildcut/internal/config"
	"wildcut/internal/jobs"
	"wildcut/internal/logging"
	"wildcut/internal/pipeline"
	"wildcut/internal/preflight"
)

// Daemon owns the job store, the runner pool, and the HTTP control surface.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *jobs.Store
	hub    *jobs.Hub
	runner *jobs.Runner
	server *api.Server

	lockPath string
	lock     *flock.Flock
	running  atomic.Bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	executor, err := pipeline.New(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	hub := jobs.NewHub()
	runner := jobs.NewRunner(store, hub, executor, jobs.RunnerOptions{
		LogDir:        cfg.Paths.LogDir,
		MaxConcurrent: cfg.Workflow.MaxConcurrentJobs,
		PollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		LogLevel:      cfg.Logging.Level,
	}, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "wildcutd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    store,
		hub:      hub,
		runner:   runner,
		server:   api.NewServer(cfg, store, runner, hub, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run acquires the instance lock and drives the runner and API server until
// ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another wildcutd instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("release daemon lock", logging.Error(err))
		}
	}()

	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}

	d.running.Store(true)
	defer d.running.Store(false)
	d.logger.Info("wildcutd started", logging.String("lock", d.lockPath))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.runner.Run(groupCtx)
	})
	group.Go(func() error {
		return d.server.Serve(groupCtx)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	d.logger.Info("wildcutd stopped")
	return err
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
