// Package deps probes the external tools the render pipeline shells out to.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 5 * time.Second

// Requirement names an external tool and the command used to invoke it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the probe outcome for one tool.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	// Detail carries the version line when the tool responds, or the
	// failure reason when it does not.
	Detail string
}

// Probe locates each command on PATH and asks it for its version. A tool
// that resolves but fails the version call still counts as available; the
// call failure is noted in Detail instead of the version.
func Probe(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, probeOne(ctx, req))
	}
	return results
}

// CheckBinaries reports availability without invoking the tools.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := newStatus(req)
		if status.Command == "" {
			status.Detail = "command not configured"
		} else if _, err := exec.LookPath(status.Command); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		} else {
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

func probeOne(ctx context.Context, req Requirement) Status {
	status := newStatus(req)
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, resolved, "-version").Output()
	if err != nil {
		status.Detail = fmt.Sprintf("version probe failed: %v", err)
		return status
	}
	status.Detail = versionLine(out)
	return status
}

func newStatus(req Requirement) Status {
	return Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
}

// versionLine extracts the first line of tool output, which for the ffmpeg
// family carries the build version.
func versionLine(out []byte) string {
	line, _, _ := strings.Cut(string(out), "\n")
	line = strings.TrimSpace(line)
	const maxDetail = 120
	if len(line) > maxDetail {
		line = line[:maxDetail]
	}
	return line
}
