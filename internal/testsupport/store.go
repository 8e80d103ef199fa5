package testsupport

import (
	"context"
	"testing"

	"wildcut/internal/config"
	"wildcut/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewJob creates a pending job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, jobType jobs.Type, camera string, args jobs.Arguments) *jobs.Job {
	t.Helper()

	job, err := store.Create(context.Background(), jobType, camera, args)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
