// Package joblog manages per-job log files: one append-only file per job
// under the log directory, plus tail-style reads for the API and CLI.
package joblog

import (
	"fmt"
	"os"
	"path/filepath"
)

// Path returns the log file path for a job.
func Path(logDir, jobID string) string {
	return filepath.Join(logDir, "jobs", jobID+".log")
}

// Create opens the append-only log file for a job, creating parent
// directories as needed.
func Create(logDir, jobID string) (*os.File, string, error) {
	path := Path(logDir, jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("create job log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("open job log: %w", err)
	}
	return file, path, nil
}

// Remove deletes a job's log file. A missing file is not an error.
func Remove(logDir, jobID string) error {
	err := os.Remove(Path(logDir, jobID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove job log: %w", err)
	}
	return nil
}
