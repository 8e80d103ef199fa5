// Package playlist builds M3U playlists of motion review clips, each entry
// pointing at the NVR's VOD endpoint for the review window.
package playlist

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grafov/m3u8"

	"wildcut/internal/events"
	"wildcut/internal/fileutil"
)

const defaultClipSeconds = 30

// Options shape playlist generation.
type Options struct {
	BaseURL        string
	VODURLTemplate string
	Timezone       string
	// DefaultDurationSecs is assumed for review items that are still open
	// (no end time yet).
	DefaultDurationSecs int
}

// Result summarises a generated playlist.
type Result struct {
	Path    string
	Entries int
	// TotalSeconds is the summed clip duration.
	TotalSeconds float64
}

// Write renders the review items into an M3U playlist file, oldest first.
func Write(path, camera string, items []events.ReviewItem, opts Options) (*Result, error) {
	if opts.DefaultDurationSecs <= 0 {
		opts.DefaultDurationSecs = defaultClipSeconds
	}
	if opts.VODURLTemplate == "" {
		opts.VODURLTemplate = "{base}/vod/{camera}/start/{start}/end/{end}/master.m3u8"
	}
	location := time.UTC
	if opts.Timezone != "" {
		loc, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
		}
		location = loc
	}

	sorted := make([]events.ReviewItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	count := uint(len(sorted))
	if count == 0 {
		count = 1
	}
	media, err := m3u8.NewMediaPlaylist(count, count)
	if err != nil {
		return nil, fmt.Errorf("create playlist: %w", err)
	}

	var total float64
	for _, item := range sorted {
		start := int64(math.Floor(item.StartTime))
		duration := float64(opts.DefaultDurationSecs)
		if item.EndTime != nil && *item.EndTime > item.StartTime {
			duration = *item.EndTime - item.StartTime
		}
		end := start + int64(math.Ceil(duration))

		uri := vodURL(opts.BaseURL, opts.VODURLTemplate, camera, start, end)
		title := fmt.Sprintf("%s %s (%s)",
			camera,
			time.Unix(start, 0).In(location).Format("2006-01-02 15:04:05"),
			item.Severity)
		if err := media.Append(uri, duration, title); err != nil {
			return nil, fmt.Errorf("append playlist entry: %w", err)
		}
		total += duration
	}
	media.Close()

	if err := fileutil.WriteFileAtomic(path, media.Encode().Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write playlist: %w", err)
	}
	return &Result{Path: path, Entries: len(sorted), TotalSeconds: total}, nil
}

func vodURL(baseURL, template, camera string, start, end int64) string {
	replacer := strings.NewReplacer(
		"{base}", strings.TrimRight(baseURL, "/"),
		"{camera}", camera,
		"{start}", strconv.FormatInt(start, 10),
		"{end}", strconv.FormatInt(end, 10),
	)
	return replacer.Replace(template)
}
