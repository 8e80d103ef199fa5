// Package pipeline maps job types onto the processing stages: window
// resolution, event segmentation, source resolution, frame sampling, and
// rendering.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wildcut/internal/config"
	"wildcut/internal/events"
	"wildcut/internal/framecache"
	"wildcut/internal/jobs"
	"wildcut/internal/logging"
	"wildcut/internal/notifications"
	"wildcut/internal/render"
	"wildcut/internal/services"
	"wildcut/internal/upload"
	"wildcut/internal/window"
)

// Pipeline executes jobs against a configuration. It implements
// jobs.Executor.
type Pipeline struct {
	cfg      *config.Config
	windows  *window.Resolver
	client   *events.Client
	engine   *render.Engine
	cache    *framecache.Cache
	notifier notifications.Service
	logger   *slog.Logger

	// newUploader is swappable for tests.
	newUploader func(ctx context.Context) (uploader, error)
}

type uploader interface {
	Upload(ctx context.Context, filePath string, meta upload.Metadata, onProgress func(percent float64)) (*upload.Result, error)
}

// New wires a Pipeline from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	windows, err := window.NewResolver(cfg.Location.Timezone, cfg.Location.Latitude, cfg.Location.Longitude)
	if err != nil {
		return nil, err
	}

	client := events.NewClient(events.Options{
		BaseURL:        cfg.Frigate.BaseURL,
		Headers:        cfg.Frigate.Headers,
		EventLimit:     cfg.Frigate.EventLimit,
		RequestTimeout: time.Duration(cfg.Frigate.RequestTimeout) * time.Second,
		MaxRetries:     cfg.Frigate.MaxRetries,
		Logger:         logger,
	})

	grace := time.Duration(cfg.Workflow.CancelGraceSecs) * time.Second
	engine := render.NewEngine(cfg.FFmpegBinary(), grace, logger)
	cache := framecache.New(cfg.Paths.FrameCacheDir, cfg.Workflow.SampleWorkers,
		framecache.FFmpegExtractor{Binary: cfg.FFmpegBinary()}, logger)

	p := &Pipeline{
		cfg:      cfg,
		windows:  windows,
		client:   client,
		engine:   engine,
		cache:    cache,
		notifier: notifications.NewService(cfg),
		logger:   logging.WithComponent(logger, "pipeline"),
	}
	p.newUploader = func(ctx context.Context) (uploader, error) {
		return upload.NewUploader(ctx, cfg, logger)
	}
	return p, nil
}

// Execute runs one job to completion.
func (p *Pipeline) Execute(ctx context.Context, job *jobs.Job, cb jobs.Callbacks) (jobs.Outcome, error) {
	var (
		outcome jobs.Outcome
		err     error
	)
	switch args := job.Arguments.(type) {
	case *jobs.MontageArgs:
		outcome, err = p.runMontage(ctx, job, args, cb)
	case *jobs.TimelapseArgs:
		outcome, err = p.runTimelapse(ctx, job, args, cb)
	case *jobs.MotionPlaylistArgs:
		outcome, err = p.runMotionPlaylist(ctx, job, args, cb)
	default:
		return jobs.Outcome{}, fmt.Errorf("unsupported job type %s", job.Type)
	}

	if ctx.Err() == nil {
		if err != nil {
			if notifyErr := p.notifier.NotifyRenderFailed(ctx, job.Camera, err); notifyErr != nil {
				p.logger.Warn("failure notification", logging.Error(notifyErr))
			}
		} else if outcome.OutputPath != "" {
			if notifyErr := p.notifier.NotifyRenderCompleted(ctx, job.Camera, outcome.OutputPath); notifyErr != nil {
				p.logger.Warn("completion notification", logging.Error(notifyErr))
			}
		}
	}
	return outcome, err
}

// resolveWindows expands the shared date and mode arguments into windows.
func (p *Pipeline) resolveWindows(startDate, endDate, mode, startTime, endTime string, dawnOffsetMin, duskOffsetMin int) ([]window.TimeWindow, window.Mode, error) {
	parsedMode, err := window.ParseMode(mode)
	if err != nil {
		return nil, "", services.Wrap(services.ErrConfiguration, "pipeline", "parse window mode", mode, err)
	}
	windows, err := p.windows.Resolve(window.Request{
		StartDate:  startDate,
		EndDate:    endDate,
		Mode:       parsedMode,
		StartTime:  startTime,
		EndTime:    endTime,
		DawnOffset: time.Duration(dawnOffsetMin) * time.Minute,
		DuskOffset: time.Duration(duskOffsetMin) * time.Minute,
	})
	if err != nil {
		return nil, "", err
	}
	if len(windows) == 0 {
		return nil, "", services.Wrap(services.ErrConfiguration, "pipeline", "resolve windows", "no windows in range", nil)
	}
	return windows, parsedMode, nil
}

// windowTag compresses a mode name for output filenames,
// e.g. dusk-to-dawn -> dusktodawn.
func windowTag(mode window.Mode) string {
	return strings.ReplaceAll(string(mode), "-", "")
}

// rangeLabel derives the date part of output names: the single day, or
// first_to_last for multi-day ranges.
func rangeLabel(windows []window.TimeWindow) string {
	first := windows[0].Day
	last := windows[len(windows)-1].Day
	if first == last {
		return first
	}
	return first + "_to_" + last
}

func (p *Pipeline) maybeUpload(ctx context.Context, enabled bool, filePath, title string, cb jobs.Callbacks) error {
	if !enabled || !p.cfg.Upload.Enabled {
		return nil
	}
	up, err := p.newUploader(ctx)
	if err != nil {
		return err
	}
	cb.OnProgress(jobs.Progress{Phase: "upload", Message: "starting upload"})
	result, err := up.Upload(ctx, filePath, upload.Metadata{Title: title}, func(percent float64) {
		cb.OnProgress(jobs.Progress{Phase: "upload", Percent: percent})
	})
	if err != nil {
		return err
	}
	cb.Logger.Info("upload finished", logging.String("url", result.URL))
	if err := p.notifier.NotifyUploadCompleted(ctx, title, result.URL); err != nil {
		p.logger.Warn("upload notification", logging.Error(err))
	}
	return nil
}
