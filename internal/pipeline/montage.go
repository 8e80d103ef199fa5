package pipeline

import (
	"context"
	"strings"

	"wildcut/internal/jobs"
	"wildcut/internal/logging"
	"wildcut/internal/render"
	"wildcut/internal/segment"
	"wildcut/internal/services"
	"wildcut/internal/source"
	"wildcut/internal/upload"
)

func (p *Pipeline) runMontage(ctx context.Context, job *jobs.Job, args *jobs.MontageArgs, cb jobs.Callbacks) (jobs.Outcome, error) {
	cb.OnProgress(jobs.Progress{Phase: "windows", Message: "resolving time windows"})
	windows, mode, err := p.resolveWindows(args.StartDate, args.EndDate, args.Mode,
		args.StartTime, args.EndTime, args.DawnOffsetMin, args.DuskOffsetMin)
	if err != nil {
		return jobs.Outcome{}, err
	}

	cb.OnProgress(jobs.Progress{Phase: "collect", Message: "fetching detection events"})
	params := p.segmentParams(args)
	collection, err := segment.Collect(ctx, p.client, cb.Logger, job.Camera, windows, params)
	if err != nil {
		return jobs.Outcome{}, err
	}
	if len(collection.Segments) == 0 {
		return jobs.Outcome{}, services.Wrap(services.ErrPartialData, "pipeline", "collect",
			"no qualifying activity in the requested windows", nil)
	}
	cb.Logger.Info("segments collected",
		logging.Int("segments", len(collection.Segments)),
		logging.Int("events", collection.Stats.EventsTotal),
		logging.Int("matched", collection.Stats.Matched),
		logging.Int("windows_skipped", collection.WindowsSkipped))

	cb.OnProgress(jobs.Progress{Phase: "resolve", Message: "locating recording sources"})
	sourceMode, err := source.ParseMode(args.SourceMode)
	if err != nil {
		return jobs.Outcome{}, services.Wrap(services.ErrConfiguration, "pipeline", "parse source mode", args.SourceMode, err)
	}
	resolver, err := source.NewResolver(source.Options{
		Roots:          p.cfg.RecordingRoots(),
		BaseURL:        p.cfg.Frigate.BaseURL,
		VODURLTemplate: p.cfg.Frigate.VODURLTemplate,
		Headers:        p.cfg.Frigate.Headers,
		Timezone:       p.cfg.Location.Timezone,
		Mode:           sourceMode,
		ProbeVOD:       args.ProbeVOD,
		Logger:         cb.Logger,
	})
	if err != nil {
		return jobs.Outcome{}, err
	}
	manifest, err := resolver.Resolve(ctx, job.Camera, windows, collection.Segments)
	if err != nil {
		return jobs.Outcome{}, err
	}
	if len(manifest.Segments) == 0 {
		return jobs.Outcome{}, services.Wrap(services.ErrPartialData, "pipeline", "resolve",
			"no segment could be resolved to a source", nil)
	}
	for _, skip := range manifest.Skipped {
		cb.Logger.Warn("segment skipped",
			logging.String("start", skip.StartLocal),
			logging.String("end", skip.EndLocal),
			logging.String("reason", skip.Reason),
			logging.String("vod_url", skip.VODURL))
	}

	kind := args.Kind
	if kind == "" {
		if args.AllMotion {
			kind = "motion"
		} else {
			kind = "animals"
		}
	}
	result, err := p.engine.RenderConcat(ctx, render.Request{
		Manifest:   manifest,
		Params:     p.renderParams(args),
		OutDir:     p.cfg.Paths.OutputDir,
		BaseLabel:  rangeLabel(windows),
		WindowTag:  windowTag(mode),
		Kind:       kind,
		DryRun:     args.DryRun,
		OnStarted:  cb.OnStarted,
		OnProgress: renderProgress(cb),
	})
	if err != nil {
		return jobs.Outcome{}, err
	}
	if result.DryRun {
		cb.Logger.Info("dry run", logging.String("command", strings.Join(result.Command, " ")))
		return jobs.Outcome{}, nil
	}

	outcome := jobs.Outcome{OutputPath: result.OutputPath}
	title := upload.VideoTitle(job.Camera, kind, rangeLabel(windows))
	if err := p.maybeUpload(ctx, args.Upload, result.OutputPath, title, cb); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (p *Pipeline) segmentParams(args *jobs.MontageArgs) segment.Params {
	params := segment.Params{
		PrePad:        p.cfg.Segments.PrePad,
		PostPad:       p.cfg.Segments.PostPad,
		MergeGap:      p.cfg.Segments.MergeGap,
		MinSegmentLen: p.cfg.Segments.MinSegmentLen,
		MinScore:      p.cfg.Segments.MinScore,
		Include:       lowercaseAll(p.cfg.Labels.Include),
		Exclude:       lowercaseAll(p.cfg.Labels.Exclude),
		AllMotion:     args.AllMotion,
		MinMotion:     args.MinMotion,
	}
	if args.MinScore > 0 {
		params.MinScore = args.MinScore
	}
	if len(args.IncludeLabels) > 0 {
		params.Include = lowercaseAll(args.IncludeLabels)
	}
	if len(args.ExcludeLabels) > 0 {
		params.Exclude = lowercaseAll(args.ExcludeLabels)
	}
	return params
}

func (p *Pipeline) renderParams(args *jobs.MontageArgs) render.Params {
	return render.Params{
		Encoder:        p.cfg.Render.Encoder,
		Preset:         p.cfg.Render.Preset,
		FPS:            p.cfg.Render.FPS,
		CQ:             p.cfg.Render.CQ,
		CRF:            p.cfg.Render.CRF,
		Maxrate:        p.cfg.Render.Maxrate,
		Bufsize:        p.cfg.Render.Bufsize,
		AudioBitrate:   p.cfg.Render.AudioBitrate,
		AudioChannels:  p.cfg.Render.AudioChannels,
		CopyMode:       !args.Encode,
		CopyAudio:      args.CopyAudio,
		Encode:         args.Encode,
		Timelapse:      args.Timelapse,
		TimelapseAudio: args.TimelapseAudio,
	}
}

func renderProgress(cb jobs.Callbacks) func(render.Progress) {
	return func(p render.Progress) {
		cb.OnProgress(jobs.Progress{Phase: p.Phase, Percent: p.Percent, Message: p.Message})
	}
}

func lowercaseAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
