package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"wildcut/internal/jobs"
	"wildcut/internal/logging"
	"wildcut/internal/playlist"
	"wildcut/internal/services"
)

func (p *Pipeline) runMotionPlaylist(ctx context.Context, job *jobs.Job, args *jobs.MotionPlaylistArgs, cb jobs.Callbacks) (jobs.Outcome, error) {
	cb.OnProgress(jobs.Progress{Phase: "windows", Message: "resolving time windows"})
	windows, _, err := p.resolveWindows(args.StartDate, args.EndDate, "", "", "", 0, 0)
	if err != nil {
		return jobs.Outcome{}, err
	}
	after := windows[0].Start.Unix()
	before := windows[len(windows)-1].End.Unix()

	cb.OnProgress(jobs.Progress{Phase: "fetch", Message: "fetching motion review items"})
	items, err := p.client.FetchReviewItems(ctx, job.Camera, "motion", after, before, args.Limit)
	if err != nil {
		return jobs.Outcome{}, err
	}
	if len(items) == 0 {
		return jobs.Outcome{}, services.Wrap(services.ErrPartialData, "pipeline", "fetch review items",
			"no motion activity in the requested range", nil)
	}
	cb.Logger.Info("review items fetched", logging.Int("items", len(items)))

	cb.OnProgress(jobs.Progress{Phase: "write", Message: "writing playlist"})
	name := fmt.Sprintf("%s-motion-%s.m3u8", job.Camera, rangeLabel(windows))
	result, err := playlist.Write(filepath.Join(p.cfg.Paths.OutputDir, name), job.Camera, items, playlist.Options{
		BaseURL:             p.cfg.Frigate.BaseURL,
		VODURLTemplate:      p.cfg.Frigate.VODURLTemplate,
		Timezone:            p.cfg.Location.Timezone,
		DefaultDurationSecs: args.DefaultDurationSecs,
	})
	if err != nil {
		return jobs.Outcome{}, err
	}
	cb.Logger.Info("playlist written",
		logging.String("path", result.Path),
		logging.Int("entries", result.Entries),
		logging.Float64("total_seconds", result.TotalSeconds))

	return jobs.Outcome{OutputPath: result.Path}, nil
}
