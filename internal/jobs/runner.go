package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wildcut/internal/joblog"
	"wildcut/internal/logging"
)

// Outcome is what a job execution produced.
type Outcome struct {
	OutputPath string
}

// Callbacks let the executor report back into the orchestrator while a job
// runs.
type Callbacks struct {
	// OnProgress is invoked for every progress update. Never nil.
	OnProgress func(Progress)
	// OnStarted receives the transcoder pid once it is running. Never nil.
	OnStarted func(pid int)
	// Logger writes to the per-job log file.
	Logger *slog.Logger
}

// Executor runs one job to completion. Implementations map the job type and
// arguments onto the pipeline stages.
type Executor interface {
	Execute(ctx context.Context, job *Job, cb Callbacks) (Outcome, error)
}

// RunnerOptions configure the job runner.
type RunnerOptions struct {
	LogDir        string
	MaxConcurrent int
	PollInterval  time.Duration
	LogLevel      string
}

type activeJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner claims pending jobs from the store and executes them on a bounded
// worker pool.
type Runner struct {
	store    *Store
	hub      *Hub
	executor Executor
	logger   *slog.Logger
	opts     RunnerOptions

	mu     sync.Mutex
	active map[string]*activeJob
	wg     sync.WaitGroup
}

// NewRunner builds a Runner.
func NewRunner(store *Store, hub *Hub, executor Executor, opts RunnerOptions, logger *slog.Logger) *Runner {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Runner{
		store:    store,
		hub:      hub,
		executor: executor,
		logger:   logging.WithComponent(logger, "runner"),
		opts:     opts,
		active:   make(map[string]*activeJob),
	}
}

// Run polls for pending jobs until the context is cancelled, then waits for
// in-flight jobs to wind down. Jobs left running by an unclean shutdown are
// returned to pending before the first poll.
func (r *Runner) Run(ctx context.Context) error {
	if reset, err := r.store.ResetStuckRunning(ctx); err != nil {
		return fmt.Errorf("reset stuck jobs: %w", err)
	} else if reset > 0 {
		r.logger.Warn("reset jobs stuck in running state", logging.Int64("count", reset))
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		r.dispatch(ctx)
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) dispatch(ctx context.Context) {
	for {
		r.mu.Lock()
		slots := r.opts.MaxConcurrent - len(r.active)
		r.mu.Unlock()
		if slots <= 0 {
			return
		}

		job, err := r.store.NextPending(ctx)
		if err != nil {
			r.logger.Error("poll pending jobs", logging.Error(err))
			return
		}
		if job == nil {
			return
		}

		jobID := job.ID
		job, err = r.store.Transition(ctx, jobID, StatusRunning, "")
		if err != nil {
			r.logger.Error("claim job", logging.String("job_id", jobID), logging.Error(err))
			return
		}

		jobCtx, cancel := context.WithCancel(ctx)
		entry := &activeJob{cancel: cancel, done: make(chan struct{})}
		r.mu.Lock()
		r.active[job.ID] = entry
		r.mu.Unlock()

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer close(entry.done)
			defer cancel()
			r.runJob(jobCtx, job)
			r.mu.Lock()
			delete(r.active, job.ID)
			r.mu.Unlock()
		}()
	}
}

func (r *Runner) runJob(ctx context.Context, job *Job) {
	logFile, logPath, err := joblog.Create(r.opts.LogDir, job.ID)
	if err != nil {
		r.logger.Error("create job log", logging.String("job_id", job.ID), logging.Error(err))
		r.finish(job, StatusFailed, "", err)
		return
	}
	defer logFile.Close()
	if err := r.store.SetLogFile(ctx, job.ID, logPath); err != nil {
		r.logger.Warn("record job log path", logging.String("job_id", job.ID), logging.Error(err))
	}

	jobLogger, err := logging.NewWithWriter(logFile, logging.Options{Level: r.opts.LogLevel, Format: "console"})
	if err != nil {
		jobLogger = logging.NewNop()
	}
	jobLogger = jobLogger.With(logging.String("job_id", job.ID))

	r.logger.Info("job started",
		logging.String("job_id", job.ID),
		logging.String("type", string(job.Type)),
		logging.String("camera", job.Camera))
	jobLogger.Info("job started",
		logging.String("type", string(job.Type)),
		logging.String("camera", job.Camera))
	r.hub.Publish(job.ID, StatusRunning, Progress{Phase: "starting"})

	cb := Callbacks{
		Logger: jobLogger,
		OnProgress: func(p Progress) {
			// Persistence failures must not interrupt a render in flight.
			if err := r.store.UpdateProgress(context.WithoutCancel(ctx), job.ID, p); err != nil {
				r.logger.Warn("persist progress", logging.String("job_id", job.ID), logging.Error(err))
			}
			r.hub.Publish(job.ID, StatusRunning, p)
		},
		OnStarted: func(pid int) {
			if err := r.store.SetPID(context.WithoutCancel(ctx), job.ID, pid); err != nil {
				r.logger.Warn("record pid", logging.String("job_id", job.ID), logging.Error(err))
			}
		},
	}

	outcome, execErr := r.executor.Execute(ctx, job, cb)

	switch {
	case ctx.Err() != nil:
		jobLogger.Warn("job cancelled")
		r.finish(job, StatusCancelled, outcome.OutputPath, nil)
	case execErr != nil:
		jobLogger.Error("job failed", logging.Error(execErr))
		r.finish(job, StatusFailed, outcome.OutputPath, execErr)
	default:
		jobLogger.Info("job completed", logging.String("output", outcome.OutputPath))
		r.finish(job, StatusCompleted, outcome.OutputPath, nil)
	}
}

func (r *Runner) finish(job *Job, status Status, outputPath string, execErr error) {
	ctx := context.Background()
	if outputPath != "" {
		if err := r.store.SetOutputFile(ctx, job.ID, outputPath); err != nil {
			r.logger.Warn("record output file", logging.String("job_id", job.ID), logging.Error(err))
		}
	}
	message := ""
	if execErr != nil {
		message = execErr.Error()
	}
	updated, err := r.store.Transition(ctx, job.ID, status, message)
	if err != nil {
		r.logger.Error("finalize job", logging.String("job_id", job.ID), logging.Error(err))
		return
	}
	progress := updated.Progress
	if status == StatusCompleted {
		progress = Progress{Phase: "done", Percent: 100}
	}
	r.hub.Publish(job.ID, status, progress)
	r.logger.Info("job finished",
		logging.String("job_id", job.ID),
		logging.String("status", string(status)))
}

// Cancel stops a job. Running jobs have their context cancelled, which
// terminates the transcoder process group; pending jobs move straight to
// cancelled.
func (r *Runner) Cancel(ctx context.Context, id string) error {
	r.mu.Lock()
	entry, running := r.active[id]
	r.mu.Unlock()
	if running {
		entry.cancel()
		return nil
	}

	job, err := r.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	if job.Status != StatusPending {
		return fmt.Errorf("job %s is %s and cannot be cancelled", id, job.Status)
	}
	if _, err := r.store.Transition(ctx, id, StatusCancelled, ""); err != nil {
		return err
	}
	r.hub.Publish(id, StatusCancelled, job.Progress)
	return nil
}

// Retry clones a terminal job into a new pending record.
func (r *Runner) Retry(ctx context.Context, id string) (*Job, error) {
	return r.store.Retry(ctx, id)
}

// Delete removes a job record and its log file. A running job is cancelled
// first and the deletion waits for it to stop.
func (r *Runner) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	entry, running := r.active[id]
	r.mu.Unlock()
	if running {
		entry.cancel()
		select {
		case <-entry.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	removed, err := r.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("job %s not found", id)
	}
	r.hub.Forget(id)
	if err := joblog.Remove(r.opts.LogDir, id); err != nil {
		r.logger.Warn("remove job log", logging.String("job_id", id), logging.Error(err))
	}
	return nil
}

// ActiveCount reports how many jobs are currently executing.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
