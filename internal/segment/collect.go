package segment

import (
	"context"
	"log/slog"

	"wildcut/internal/events"
	"wildcut/internal/logging"
	"wildcut/internal/services"
	"wildcut/internal/window"
)

// EventSource is the slice of the NVR client the segmenter needs.
type EventSource interface {
	FetchEvents(ctx context.Context, camera string, after, before int64) ([]events.Event, error)
	FetchRecordingSummary(ctx context.Context, camera string, after, before int64) ([]events.RecordingSegment, error)
}

// Collection is the combined segmentation result across all windows.
type Collection struct {
	Segments []Segment
	Stats    Stats
	// WindowsSkipped counts windows whose events could not be fetched
	// after retries. Their footage is simply absent from the output.
	WindowsSkipped int
}

// Collect fetches and segments every window. A window whose fetch fails after
// retries is logged and skipped; remaining windows still contribute. The
// returned segments are ordered chronologically across windows.
func Collect(ctx context.Context, source EventSource, logger *slog.Logger, camera string, windows []window.TimeWindow, p Params) (Collection, error) {
	log := logging.WithComponent(logger, "segment")

	var out Collection
	for _, win := range windows {
		segments, stats, err := collectWindow(ctx, source, camera, win, p)
		if err != nil {
			if ctx.Err() != nil {
				return Collection{}, err
			}
			if services.IsTerminal(err) {
				return Collection{}, err
			}
			out.WindowsSkipped++
			log.Warn("window events unavailable, skipping",
				logging.String("day", win.Day),
				logging.Error(err))
			continue
		}
		log.Info("window segmented",
			logging.String("day", win.Day),
			logging.Int("events", stats.EventsTotal),
			logging.Int("matched", stats.Matched),
			logging.Int("segments", len(segments)))
		out.Segments = append(out.Segments, segments...)
		out.Stats.Add(stats)
	}

	if out.WindowsSkipped == len(windows) && len(windows) > 0 {
		return Collection{}, services.Wrap(services.ErrPartialData, "segment", "collect",
			"all windows failed to fetch", nil)
	}
	return out, nil
}

func collectWindow(ctx context.Context, source EventSource, camera string, win window.TimeWindow, p Params) ([]Segment, Stats, error) {
	after := win.Start.Unix()
	before := win.End.Unix()

	if p.AllMotion {
		chunks, err := source.FetchRecordingSummary(ctx, camera, after, before)
		if err != nil {
			return nil, Stats{}, err
		}
		segments, stats := BuildFromMotion(camera, win, chunks, p)
		return segments, stats, nil
	}

	evs, err := source.FetchEvents(ctx, camera, after, before)
	if err != nil {
		return nil, Stats{}, err
	}
	segments, stats := BuildFromEvents(camera, win, evs, p)
	return segments, stats, nil
}
