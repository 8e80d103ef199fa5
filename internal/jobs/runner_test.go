package jobs

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"wildcut/internal/logging"
)

type fakeExecutor struct {
	execute func(ctx context.Context, job *Job, cb Callbacks) (Outcome, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, job *Job, cb Callbacks) (Outcome, error) {
	return f.execute(ctx, job, cb)
}

func newTestRunner(t *testing.T, store *Store, hub *Hub, exec Executor, maxConcurrent int) *Runner {
	t.Helper()
	return NewRunner(store, hub, exec, RunnerOptions{
		LogDir:        t.TempDir(),
		MaxConcurrent: maxConcurrent,
		PollInterval:  20 * time.Millisecond,
	}, logging.NewNop())
}

func waitForStatus(t *testing.T, store *Store, id string, want Status) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, want)
	return nil
}

func TestRunnerExecutesJobToCompletion(t *testing.T) {
	store := openTestStore(t)
	hub := NewHub()
	exec := &fakeExecutor{execute: func(ctx context.Context, job *Job, cb Callbacks) (Outcome, error) {
		cb.Logger.Info("rendering")
		cb.OnStarted(4242)
		cb.OnProgress(Progress{Phase: "render", Percent: 50})
		return Outcome{OutputPath: "/out/front-animals.mp4"}, nil
	}}
	runner := newTestRunner(t, store, hub, exec, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	job, err := store.Create(context.Background(), TypeMontage, "front", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	done := waitForStatus(t, store, job.ID, StatusCompleted)
	if done.OutputFile != "/out/front-animals.mp4" {
		t.Fatalf("output file = %q", done.OutputFile)
	}
	if done.LogFile == "" {
		t.Fatal("log file not recorded")
	}
	data, err := os.ReadFile(done.LogFile)
	if err != nil {
		t.Fatalf("read job log: %v", err)
	}
	if !strings.Contains(string(data), "rendering") {
		t.Fatalf("executor output missing from job log: %s", data)
	}

	event, ok := hub.Snapshot(job.ID)
	if !ok || event.Status != StatusCompleted || event.Progress.Percent != 100 {
		t.Fatalf("final snapshot = %+v ok=%v", event, ok)
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	store := openTestStore(t)
	hub := NewHub()
	exec := &fakeExecutor{execute: func(ctx context.Context, job *Job, cb Callbacks) (Outcome, error) {
		return Outcome{}, errors.New("no recordings found")
	}}
	runner := newTestRunner(t, store, hub, exec, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	job, _ := store.Create(context.Background(), TypeMontage, "front", nil)
	failed := waitForStatus(t, store, job.ID, StatusFailed)
	if !strings.Contains(failed.Error, "no recordings found") {
		t.Fatalf("error message = %q", failed.Error)
	}
}

func TestRunnerCancelRunningJob(t *testing.T) {
	store := openTestStore(t)
	hub := NewHub()
	started := make(chan struct{})
	exec := &fakeExecutor{execute: func(ctx context.Context, job *Job, cb Callbacks) (Outcome, error) {
		close(started)
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	}}
	runner := newTestRunner(t, store, hub, exec, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	job, _ := store.Create(context.Background(), TypeMontage, "front", nil)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	if err := runner.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitForStatus(t, store, job.ID, StatusCancelled)
}

func TestRunnerCancelPendingJob(t *testing.T) {
	store := openTestStore(t)
	hub := NewHub()
	runner := newTestRunner(t, store, hub, &fakeExecutor{}, 1)

	job, _ := store.Create(context.Background(), TypeMontage, "front", nil)
	if err := runner.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel pending: %v", err)
	}
	got, _ := store.GetByID(context.Background(), job.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}

	if err := runner.Cancel(context.Background(), job.ID); err == nil {
		t.Fatal("cancelling a terminal job should fail")
	}
}

func TestRunnerDeleteCancelsRunningJob(t *testing.T) {
	store := openTestStore(t)
	hub := NewHub()
	started := make(chan struct{})
	exec := &fakeExecutor{execute: func(ctx context.Context, job *Job, cb Callbacks) (Outcome, error) {
		close(started)
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	}}
	runner := newTestRunner(t, store, hub, exec, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	job, _ := store.Create(context.Background(), TypeMontage, "front", nil)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	if err := runner.Delete(context.Background(), job.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("job record should be gone")
	}
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	store := openTestStore(t)
	hub := NewHub()
	var inFlight, peak atomic.Int32
	exec := &fakeExecutor{execute: func(ctx context.Context, job *Job, cb Callbacks) (Outcome, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(60 * time.Millisecond)
		inFlight.Add(-1)
		return Outcome{}, nil
	}}
	runner := newTestRunner(t, store, hub, exec, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	var ids []string
	for i := 0; i < 5; i++ {
		job, _ := store.Create(context.Background(), TypeMontage, "front", nil)
		ids = append(ids, job.ID)
	}
	for _, id := range ids {
		waitForStatus(t, store, id, StatusCompleted)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency %d exceeds limit", got)
	}
}

func TestRunnerRetryOnlyTerminalJobs(t *testing.T) {
	store := openTestStore(t)
	runner := newTestRunner(t, store, NewHub(), &fakeExecutor{}, 1)

	job, _ := store.Create(context.Background(), TypeMontage, "front", nil)
	if _, err := runner.Retry(context.Background(), job.ID); err == nil {
		t.Fatal("pending job should not be retryable")
	}

	_, _ = store.Transition(context.Background(), job.ID, StatusRunning, "")
	_, _ = store.Transition(context.Background(), job.ID, StatusFailed, "boom")
	clone, err := runner.Retry(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if clone.ID == job.ID || clone.Status != StatusPending {
		t.Fatalf("unexpected clone %+v", clone)
	}
}
