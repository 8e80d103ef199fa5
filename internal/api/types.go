// Package api serves the HTTP control surface: job submission, inspection,
// cancellation, log tailing, and progress streaming.
package api

import (
	"encoding/json"
	"time"

	"wildcut/internal/jobs"
)

// CreateJobRequest is the POST /api/jobs payload. Arguments are decoded
// against the job type; unknown fields are preserved on the stored job.
type CreateJobRequest struct {
	Type      string          `json:"type"`
	Camera    string          `json:"camera"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// JobResponse wraps a single job record.
type JobResponse struct {
	Job *jobs.Job `json:"job"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []*jobs.Job `json:"jobs"`
}

// JobView mirrors the job wire format for clients. Arguments stay raw since
// the client has no job type context at decode time.
type JobView struct {
	ID          string          `json:"id"`
	Type        jobs.Type       `json:"type"`
	Status      jobs.Status     `json:"status"`
	Camera      string          `json:"camera"`
	Arguments   json.RawMessage `json:"arguments"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Progress    jobs.Progress   `json:"progress"`
	OutputFile  string          `json:"output_file,omitempty"`
	Error       string          `json:"error,omitempty"`
	LogFile     string          `json:"log_file,omitempty"`
	PID         int             `json:"pid,omitempty"`
	RetryOf     string          `json:"retry_of,omitempty"`
}

// JobViewResponse wraps a single job as seen by clients.
type JobViewResponse struct {
	Job *JobView `json:"job"`
}

// JobViewListResponse wraps a job listing as seen by clients.
type JobViewListResponse struct {
	Jobs []*JobView `json:"jobs"`
}

// LogResponse carries tailed job log lines plus the resume offset.
type LogResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// FileEntry describes one artifact in the output directory.
type FileEntry struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// FileListResponse wraps the output directory listing.
type FileListResponse struct {
	Files []FileEntry `json:"files"`
}

// DependencyStatus reports availability of one external tool.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// StatusResponse is the GET /api/status payload.
type StatusResponse struct {
	Version      string              `json:"version"`
	JobDBPath    string              `json:"job_db_path"`
	ActiveJobs   int                 `json:"active_jobs"`
	JobCounts    map[jobs.Status]int `json:"job_counts"`
	Dependencies []DependencyStatus  `json:"dependencies"`
}
