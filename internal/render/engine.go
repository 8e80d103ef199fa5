package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wildcut/internal/fileutil"
	"wildcut/internal/logging"
	"wildcut/internal/source"
)

// Request describes one render invocation.
type Request struct {
	Manifest *source.Manifest
	Params   Params
	OutDir   string
	// OutFile overrides the derived output filename when set.
	OutFile string
	// BaseLabel and WindowTag feed the derived filename, e.g.
	// front-animals-2026-06-15-fullday.mp4.
	BaseLabel string
	WindowTag string
	Kind      string

	// DryRun performs every step up to starting the transcoder and reports
	// the exact command without executing it.
	DryRun bool

	OnProgress func(Progress)
	// OnStarted receives the transcoder pid once the process is running.
	OnStarted func(pid int)
}

// Result is what a render produced.
type Result struct {
	OutputPath string   `json:"output_path"`
	Command    []string `json:"command"`
	Sidecars   []string `json:"sidecars,omitempty"`
	DryRun     bool     `json:"dry_run,omitempty"`
}

// Engine drives the transcoder and writes sidecar artifacts.
type Engine struct {
	binary string
	grace  time.Duration
	logger *slog.Logger
}

// NewEngine builds an Engine. grace bounds how long Terminate waits between
// SIGTERM and SIGKILL during cancellation.
func NewEngine(binary string, grace time.Duration, logger *slog.Logger) *Engine {
	if binary == "" {
		binary = "ffmpeg"
	}
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Engine{
		binary: binary,
		grace:  grace,
		logger: logging.WithComponent(logger, "render"),
	}
}

// OutputName derives the conventional output filename. Camera names come
// from NVR config and job input, so the result is sanitized.
func OutputName(camera, kind, baseLabel, windowTag string, timelapse float64) string {
	suffix := windowTag
	if timelapse > 0 {
		suffix += fmt.Sprintf("-timelapse%gx", timelapse)
	}
	return fileutil.SanitizeFilename(fmt.Sprintf("%s-%s-%s-%s.mp4", camera, kind, baseLabel, suffix))
}

// outputPath resolves the render target: an explicit OutFile wins, a derived
// name is made unique so reruns never clobber an earlier render.
func outputPath(req Request, name string) string {
	if req.OutFile != "" {
		return req.OutFile
	}
	return fileutil.UniquePath(filepath.Join(req.OutDir, name))
}

// RenderConcat runs segment concat mode: every manifest entry becomes a
// concat input, stream-copied or re-encoded per the params.
func (e *Engine) RenderConcat(ctx context.Context, req Request) (*Result, error) {
	manifest := req.Manifest
	entries := ConcatEntries(manifest)
	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest has no resolved segments")
	}

	outPath := outputPath(req,
		OutputName(manifest.Camera, req.Kind, req.BaseLabel, req.WindowTag, req.Params.Timelapse))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	concatPath, err := WriteConcatFile(req.OutDir, manifest.Camera, entries)
	if err != nil {
		return nil, err
	}
	defer os.Remove(concatPath)

	args := BuildConcatArgs(concatPath, outPath, req.Params)

	totalOut := float64(manifest.TotalSeconds())
	if req.Params.Timelapse > 0 {
		totalOut /= req.Params.Timelapse
	}

	result := &Result{OutputPath: outPath, Command: append([]string{e.binary}, args...)}
	if req.DryRun {
		result.DryRun = true
		return result, nil
	}

	e.logger.Info("starting transcoder",
		logging.String("output", outPath),
		logging.Int("concat_entries", len(entries)),
		logging.Float64("total_out_seconds", totalOut))

	if err := e.run(ctx, args, "render", totalOut, req); err != nil {
		return nil, err
	}

	sidecars, err := e.writeSidecars(outPath, manifest, req.Params.Timelapse)
	if err != nil {
		return nil, err
	}
	result.Sidecars = sidecars
	return result, nil
}

// RenderSequence runs frame sequence mode: the sampled frame directory is
// encoded at a fixed output frame rate.
func (e *Engine) RenderSequence(ctx context.Context, seqDir string, frameCount int, req Request) (*Result, error) {
	if frameCount == 0 {
		return nil, fmt.Errorf("frame sequence is empty")
	}

	outPath := outputPath(req,
		OutputName(req.Manifest.Camera, req.Kind, req.BaseLabel, req.WindowTag, 0))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	args := BuildSequenceArgs(seqDir, outPath, req.Params)
	totalOut := float64(frameCount) / float64(req.Params.FPS)

	result := &Result{OutputPath: outPath, Command: append([]string{e.binary}, args...)}
	if req.DryRun {
		result.DryRun = true
		return result, nil
	}

	e.logger.Info("encoding frame sequence",
		logging.String("output", outPath),
		logging.Int("frames", frameCount),
		logging.Float64("total_out_seconds", totalOut))

	if err := e.run(ctx, args, "encode", totalOut, req); err != nil {
		return nil, err
	}

	sidecars, err := e.writeSidecars(outPath, req.Manifest, 0)
	if err != nil {
		return nil, err
	}
	result.Sidecars = sidecars
	return result, nil
}

// run supervises one transcoder invocation, terminating the whole process
// group if the context is cancelled. Partial output is left in place.
func (e *Engine) run(ctx context.Context, args []string, phase string, totalOut float64, req Request) error {
	proc, err := StartProcess(e.binary, args, phase, totalOut, req.OnProgress)
	if err != nil {
		return err
	}
	if req.OnStarted != nil {
		req.OnStarted(proc.PID())
	}

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			proc.Terminate(e.grace)
		case <-watchDone:
		}
	}()

	runErr := proc.Supervise()
	close(watchDone)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr != nil {
		e.logger.Error("transcoder failed", logging.Error(runErr))
		return runErr
	}
	return nil
}

func (e *Engine) writeSidecars(outPath string, manifest *source.Manifest, timelapse float64) ([]string, error) {
	base := strings.TrimSuffix(outPath, filepath.Ext(outPath))

	playlistPath := base + ".m3u8"
	if err := WritePlaylistSidecar(playlistPath, manifest); err != nil {
		return nil, fmt.Errorf("playlist sidecar: %w", err)
	}
	chaptersPath := base + ".chapters.txt"
	if err := WriteChaptersSidecar(chaptersPath, manifest, timelapse); err != nil {
		return nil, fmt.Errorf("chapters sidecar: %w", err)
	}
	manifestPath := base + ".manifest.json"
	if err := WriteManifestSidecar(manifestPath, manifest); err != nil {
		return nil, fmt.Errorf("manifest sidecar: %w", err)
	}
	return []string{playlistPath, chaptersPath, manifestPath}, nil
}
