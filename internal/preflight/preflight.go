// Package preflight validates the environment before jobs run: required
// binaries, directory access, disk headroom, and NVR API reachability.
package preflight

import (
	"context"

	"wildcut/internal/config"
	"wildcut/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	for _, status := range deps.CheckBinaries(binaryRequirements(cfg)) {
		results = append(results, Result{
			Name:   status.Name,
			Passed: status.Available,
			Detail: status.Detail,
		})
	}
	for _, root := range cfg.RecordingRoots() {
		results = append(results, CheckDirectoryReadable("Recordings directory", root))
	}
	results = append(results, CheckDirectoryWritable("Output directory", cfg.Paths.OutputDir))
	results = append(results, CheckDirectoryWritable("Frame cache directory", cfg.Paths.FrameCacheDir))
	results = append(results, CheckFreeSpace("Output disk space", cfg.Paths.OutputDir, minFreeBytes))
	results = append(results, CheckEventsAPI(ctx, cfg))

	return results
}

// CheckSystemDeps probes the external binary requirements, including tool
// versions. Both the daemon and the CLI status command use this to avoid
// duplicating the list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.Probe(ctx, binaryRequirements(cfg))
}

func binaryRequirements(cfg *config.Config) []deps.Requirement {
	ffmpeg, ffprobe := "ffmpeg", "ffprobe"
	if cfg != nil {
		ffmpeg = cfg.FFmpegBinary()
		ffprobe = cfg.FFprobeBinary()
	}
	return []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Required for rendering and frame extraction",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobe,
			Description: "Required for media inspection",
		},
	}
}

// Passed reports whether every non-optional check succeeded.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
