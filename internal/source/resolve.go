package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wildcut/internal/logging"
	"wildcut/internal/segment"
	"wildcut/internal/window"
)

// Mode selects which media sources a resolver may use.
type Mode string

const (
	// ModeAuto prefers disk per segment and falls back to VOD.
	ModeAuto Mode = "auto"
	ModeDisk Mode = "disk"
	ModeVOD  Mode = "vod"
)

// ParseMode maps user input to a Mode.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return ModeAuto, nil
	case "disk":
		return ModeDisk, nil
	case "vod":
		return ModeVOD, nil
	default:
		return "", fmt.Errorf("unknown source mode %q", value)
	}
}

// Ref points the render engine at the media covering one segment.
type Ref struct {
	Type    string   `json:"type"` // disk or vod
	Files   []string `json:"files,omitempty"`
	URL     string   `json:"url,omitempty"`
	Cadence int64    `json:"cadence,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Entry is one resolved manifest row.
type Entry struct {
	Segment segment.Segment `json:"segment"`
	Source  Ref             `json:"source"`
}

// Skip records a segment no source could cover, with enough diagnostics to
// investigate by hand.
type Skip struct {
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	StartLocal string `json:"start_local"`
	EndLocal   string `json:"end_local"`
	Reason     string `json:"reason"`
	VODURL     string `json:"vod_url"`
}

// Stats summarizes resolution for job reporting.
type Stats struct {
	SegmentsTotal   int   `json:"segments_total"`
	SegmentsSkipped int   `json:"segments_skipped"`
	DiskSegments    int   `json:"disk_segments"`
	VODSegments     int   `json:"vod_segments"`
	DiskIndexFiles  int   `json:"disk_index_files"`
	Cadence         int64 `json:"cadence,omitempty"`
}

// Manifest is the ordered set of resolved media references for a job.
type Manifest struct {
	Camera   string              `json:"camera"`
	BaseURL  string              `json:"base_url"`
	Timezone string              `json:"timezone"`
	Windows  []window.TimeWindow `json:"windows"`
	Segments []Entry             `json:"segments"`
	Skipped  []Skip              `json:"skipped,omitempty"`
	Stats    Stats               `json:"stats"`
}

// TotalSeconds sums the output duration of every resolved segment.
func (m *Manifest) TotalSeconds() int64 {
	var total int64
	for _, entry := range m.Segments {
		total += entry.Segment.Duration()
	}
	return total
}

// Options configures a Resolver.
type Options struct {
	Roots          []string
	BaseURL        string
	VODURLTemplate string
	Headers        map[string]string
	Timezone       string
	Mode           Mode
	ProbeVOD       bool
	StartSlop      float64
	EndSlop        float64
	Logger         *slog.Logger
}

// Resolver turns segments into a Manifest.
type Resolver struct {
	opts       Options
	location   *time.Location
	httpClient *http.Client
	logger     *slog.Logger
}

// NewResolver builds a Resolver, filling default slop values.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	if opts.StartSlop <= 0 {
		opts.StartSlop = 2.0
	}
	if opts.EndSlop <= 0 {
		opts.EndSlop = 4.0
	}
	if opts.VODURLTemplate == "" {
		opts.VODURLTemplate = "{base}/vod/{camera}/start/{start}/end/{end}/master.m3u8"
	}
	loc := time.UTC
	if opts.Timezone != "" {
		parsed, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
		loc = parsed
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		opts:       opts,
		location:   loc,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.WithComponent(logger, "source"),
	}, nil
}

// VODURL expands the URL template for a camera and UTC epoch range.
func (r *Resolver) VODURL(camera string, start, end int64) string {
	replacer := strings.NewReplacer(
		"{base}", strings.TrimRight(r.opts.BaseURL, "/"),
		"{camera}", camera,
		"{start}", strconv.FormatInt(start, 10),
		"{end}", strconv.FormatInt(end, 10),
	)
	return replacer.Replace(r.opts.VODURLTemplate)
}

// Resolve maps every segment to a disk or VOD reference, preserving order.
// Segments with no usable source land in Skipped; resolution never aborts
// the run on their account.
func (r *Resolver) Resolve(ctx context.Context, camera string, windows []window.TimeWindow, segments []segment.Segment) (*Manifest, error) {
	manifest := &Manifest{
		Camera:   camera,
		BaseURL:  strings.TrimRight(r.opts.BaseURL, "/"),
		Timezone: r.opts.Timezone,
		Windows:  windows,
		Stats:    Stats{SegmentsTotal: len(segments)},
	}
	if len(segments) == 0 {
		return manifest, nil
	}

	var idx *Index
	if r.opts.Mode != ModeVOD {
		after, before := span(windows, segments)
		scanned, err := ScanIndex(r.opts.Roots, camera, after, before)
		if err != nil {
			r.logger.Warn("disk index unavailable", logging.Error(err))
		} else {
			idx = scanned
			manifest.Stats.DiskIndexFiles = idx.Len()
			manifest.Stats.Cadence = idx.Cadence()
			r.logger.Info("disk index built",
				logging.Int("files", idx.Len()),
				logging.Int64("cadence", idx.Cadence()))
		}
	}

	for _, seg := range segments {
		entry, skip := r.resolveSegment(ctx, idx, seg)
		if skip != nil {
			manifest.Skipped = append(manifest.Skipped, *skip)
			manifest.Stats.SegmentsSkipped++
			r.logger.Warn("segment skipped",
				logging.String("range", skip.StartLocal+" -> "+skip.EndLocal),
				logging.String("reason", skip.Reason))
			continue
		}
		if entry.Source.Type == "disk" {
			manifest.Stats.DiskSegments++
		} else {
			manifest.Stats.VODSegments++
		}
		manifest.Segments = append(manifest.Segments, entry)
	}
	return manifest, nil
}

func (r *Resolver) resolveSegment(ctx context.Context, idx *Index, seg segment.Segment) (Entry, *Skip) {
	var diskReason string
	if r.opts.Mode != ModeVOD {
		if idx == nil {
			diskReason = "no disk index"
		} else if files, reason := idx.FilesForSegment(seg.Start, seg.End, r.opts.StartSlop, r.opts.EndSlop); reason == "" {
			return Entry{
				Segment: seg,
				Source:  Ref{Type: "disk", Files: files, Cadence: idx.Cadence()},
			}, nil
		} else {
			diskReason = reason
		}
		if r.opts.Mode == ModeDisk {
			return Entry{}, r.skip(seg, diskReason)
		}
	}

	url := r.VODURL(seg.Camera, seg.Start, seg.End)
	if r.opts.ProbeVOD {
		if err := r.probe(ctx, url); err != nil {
			reason := fmt.Sprintf("vod probe failed: %v", err)
			if diskReason != "" {
				reason = diskReason + "; " + reason
			}
			return Entry{}, r.skip(seg, reason)
		}
	}
	return Entry{
		Segment: seg,
		Source:  Ref{Type: "vod", URL: url, Reason: diskReason},
	}, nil
}

func (r *Resolver) skip(seg segment.Segment, reason string) *Skip {
	return &Skip{
		Start:      seg.Start,
		End:        seg.End,
		StartLocal: time.Unix(seg.Start, 0).In(r.location).Format("2006-01-02 15:04:05 MST"),
		EndLocal:   time.Unix(seg.End, 0).In(r.location).Format("2006-01-02 15:04:05 MST"),
		Reason:     reason,
		VODURL:     r.VODURL(seg.Camera, seg.Start, seg.End),
	}
}

func (r *Resolver) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	for key, value := range r.opts.Headers {
		req.Header.Set(key, value)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// span widens [min segment start, max segment end] to the enclosing windows
// so the index covers padding at the edges.
func span(windows []window.TimeWindow, segments []segment.Segment) (int64, int64) {
	after := segments[0].Start
	before := segments[len(segments)-1].End
	for _, seg := range segments {
		if seg.Start < after {
			after = seg.Start
		}
		if seg.End > before {
			before = seg.End
		}
	}
	for _, win := range windows {
		if s := win.Start.Unix(); s < after {
			after = s
		}
		if e := win.End.Unix(); e > before {
			before = e
		}
	}
	return after, before
}
