package pipeline

import (
	"context"
	"os"
	"strings"

	"wildcut/internal/framecache"
	"wildcut/internal/jobs"
	"wildcut/internal/logging"
	"wildcut/internal/render"
	"wildcut/internal/services"
	"wildcut/internal/source"
	"wildcut/internal/upload"
)

const (
	defaultSampleInterval = 30
	defaultSequenceFPS    = 30
)

func (p *Pipeline) runTimelapse(ctx context.Context, job *jobs.Job, args *jobs.TimelapseArgs, cb jobs.Callbacks) (jobs.Outcome, error) {
	cb.OnProgress(jobs.Progress{Phase: "windows", Message: "resolving time windows"})
	windows, mode, err := p.resolveWindows(args.StartDate, args.EndDate, args.Mode,
		args.StartTime, args.EndTime, args.DawnOffsetMin, args.DuskOffsetMin)
	if err != nil {
		return jobs.Outcome{}, err
	}

	interval := int64(args.IntervalSeconds)
	if interval <= 0 {
		interval = defaultSampleInterval
	}

	cb.OnProgress(jobs.Progress{Phase: "scan", Message: "indexing recordings"})
	var samples []framecache.Sample
	for _, win := range windows {
		idx, err := source.ScanIndex(p.cfg.RecordingRoots(), job.Camera, win.Start.Unix(), win.End.Unix())
		if err != nil {
			return jobs.Outcome{}, services.Wrap(services.ErrPartialData, "pipeline", "scan recordings", win.Day, err)
		}
		planned := framecache.Plan(idx.Chunks(), win.Start.Unix(), interval)
		if len(planned) == 0 {
			cb.Logger.Warn("no recordings in window", logging.String("day", win.Day))
			continue
		}
		samples = append(samples, planned...)
	}
	if len(samples) == 0 {
		return jobs.Outcome{}, services.Wrap(services.ErrPartialData, "pipeline", "plan samples",
			"no recordings found in the requested windows", nil)
	}
	cb.Logger.Info("sampling planned",
		logging.Int("frames", len(samples)),
		logging.Int64("interval_seconds", interval))

	params := p.sequenceParams(args)
	req := render.Request{
		Manifest: &source.Manifest{
			Camera:   job.Camera,
			Timezone: p.cfg.Location.Timezone,
			Windows:  windows,
		},
		Params:     params,
		OutDir:     p.cfg.Paths.OutputDir,
		BaseLabel:  rangeLabel(windows),
		WindowTag:  windowTag(mode),
		Kind:       "timelapse",
		DryRun:     args.DryRun,
		OnStarted:  cb.OnStarted,
		OnProgress: renderProgress(cb),
	}

	if args.DryRun {
		result, err := p.engine.RenderSequence(ctx, "<frame-sequence>", len(samples), req)
		if err != nil {
			return jobs.Outcome{}, err
		}
		cb.Logger.Info("dry run",
			logging.Int("planned_frames", len(samples)),
			logging.String("command", strings.Join(result.Command, " ")))
		return jobs.Outcome{}, nil
	}

	seqDir, err := os.MkdirTemp(p.cfg.Paths.FrameCacheDir, "seq-")
	if err != nil {
		return jobs.Outcome{}, services.Wrap(services.ErrConfiguration, "pipeline", "create sequence dir", "", err)
	}
	defer os.RemoveAll(seqDir)

	cb.OnProgress(jobs.Progress{Phase: "sample", Message: "extracting frames"})
	stats, err := p.cache.Materialize(ctx, job.Camera, samples, seqDir, func(done, total int) {
		cb.OnProgress(jobs.Progress{
			Phase:   "sample",
			Percent: float64(done) / float64(total) * 100,
		})
	})
	if err != nil {
		return jobs.Outcome{}, err
	}
	cb.Logger.Info("frames materialized",
		logging.Int("kept", stats.FramesKept),
		logging.Int("cache_hits", stats.Hits),
		logging.Int("failed", stats.Failed))

	result, err := p.engine.RenderSequence(ctx, seqDir, stats.FramesKept, req)
	if err != nil {
		return jobs.Outcome{}, err
	}

	outcome := jobs.Outcome{OutputPath: result.OutputPath}
	title := upload.VideoTitle(job.Camera, "timelapse", rangeLabel(windows))
	if err := p.maybeUpload(ctx, args.Upload, result.OutputPath, title, cb); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (p *Pipeline) sequenceParams(args *jobs.TimelapseArgs) render.Params {
	fps := args.FPS
	if fps <= 0 {
		fps = p.cfg.Render.FPS
	}
	if fps <= 0 {
		fps = defaultSequenceFPS
	}
	return render.Params{
		Encoder: p.cfg.Render.Encoder,
		Preset:  p.cfg.Render.Preset,
		FPS:     fps,
		CQ:      p.cfg.Render.CQ,
		CRF:     p.cfg.Render.CRF,
		Maxrate: p.cfg.Render.Maxrate,
		Bufsize: p.cfg.Render.Bufsize,
		Encode:  true,
		Scale:   args.Scale,
	}
}
