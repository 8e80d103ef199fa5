// Package jobs owns the job records, their state machine, persistence, and
// the runner that executes them.
package jobs

import (
	"fmt"
	"time"
)

// Type identifies what a job produces.
type Type string

const (
	TypeMontage        Type = "montage"
	TypeTimelapse      Type = "timelapse"
	TypeMotionPlaylist Type = "motion_playlist"
)

// ParseType validates a job type string.
func ParseType(value string) (Type, error) {
	switch Type(value) {
	case TypeMontage, TypeTimelapse, TypeMotionPlaylist:
		return Type(value), nil
	default:
		return "", fmt.Errorf("unknown job type %q", value)
	}
}

// Status is the job lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is legal. Only a
// pending job may start; only a running job may complete, fail, or be
// cancelled. Retry never mutates a terminal job; it clones a new record.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	default:
		return false
	}
}

// Progress mirrors the render engine's callback payload.
type Progress struct {
	Phase   string  `json:"phase"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Job is one unit of work owned by the orchestrator.
type Job struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	Camera      string     `json:"camera"`
	Arguments   Arguments  `json:"arguments"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Progress    Progress   `json:"progress"`
	OutputFile  string     `json:"output_file,omitempty"`
	Error       string     `json:"error,omitempty"`
	LogFile     string     `json:"log_file,omitempty"`
	PID         int        `json:"pid,omitempty"`
	// RetryOf references the job this one was cloned from, if any.
	RetryOf string `json:"retry_of,omitempty"`
}
