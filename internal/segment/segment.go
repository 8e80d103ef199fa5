// Package segment converts detection events or motion summaries into padded,
// merged, non-overlapping time segments.
package segment

import (
	"math"
	"sort"

	"wildcut/internal/events"
	"wildcut/internal/window"
)

// Segment is one padded, merged span of interesting footage. Times are epoch
// seconds. Labels lists the detection labels that contributed, deduplicated.
type Segment struct {
	Start  int64    `json:"start"`
	End    int64    `json:"end"`
	Camera string   `json:"camera"`
	Labels []string `json:"labels,omitempty"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() int64 {
	return s.End - s.Start
}

// Params controls filtering, padding, and merging.
type Params struct {
	PrePad        int
	PostPad       int
	MergeGap      int
	MinSegmentLen int
	MinScore      float64
	// Include and Exclude are lowercase label sets. An empty Include set
	// accepts any label not excluded.
	Include []string
	Exclude []string
	// AllMotion switches from label filtering to motion-intensity
	// thresholding on recording summaries.
	AllMotion bool
	MinMotion int
}

// Stats summarizes one window's segmentation for job reporting.
type Stats struct {
	EventsTotal    int            `json:"events_total"`
	Matched        int            `json:"matched"`
	RawSegments    int            `json:"raw_segments"`
	MergedSegments int            `json:"merged_segments"`
	LabelsSeen     map[string]int `json:"labels_seen,omitempty"`
}

// Add accumulates another window's stats.
func (s *Stats) Add(other Stats) {
	s.EventsTotal += other.EventsTotal
	s.Matched += other.Matched
	s.RawSegments += other.RawSegments
	s.MergedSegments += other.MergedSegments
	for label, count := range other.LabelsSeen {
		if s.LabelsSeen == nil {
			s.LabelsSeen = map[string]int{}
		}
		s.LabelsSeen[label] += count
	}
}

type candidate struct {
	start  int64
	end    int64
	labels []string
}

// BuildFromEvents filters, pads, clamps, and merges detection events within
// one window. Empty output is valid and means no qualifying activity.
func BuildFromEvents(camera string, win window.TimeWindow, evs []events.Event, p Params) ([]Segment, Stats) {
	after := win.Start.Unix()
	before := win.End.Unix()

	stats := Stats{EventsTotal: len(evs), LabelsSeen: map[string]int{}}
	include := toSet(p.Include)
	exclude := toSet(p.Exclude)

	var candidates []candidate
	for _, ev := range evs {
		if ev.Label != "" {
			stats.LabelsSeen[ev.Label]++
		}
		if ev.Label == "" {
			continue
		}
		if ev.BestScore() < p.MinScore {
			continue
		}
		if _, excluded := exclude[ev.Label]; excluded {
			continue
		}
		if len(include) > 0 {
			if _, ok := include[ev.Label]; !ok {
				continue
			}
		}
		stats.Matched++

		end := ev.StartTime
		if ev.EndTime != nil {
			end = *ev.EndTime
		}
		c, ok := pad(ev.StartTime, end, after, before, p)
		if !ok {
			continue
		}
		c.labels = []string{ev.Label}
		candidates = append(candidates, c)
	}

	stats.RawSegments = len(candidates)
	merged := merge(candidates, int64(p.MergeGap))
	stats.MergedSegments = len(merged)
	return toSegments(camera, merged), stats
}

// BuildFromMotion thresholds recording-chunk motion counters instead of
// labels. A chunk qualifies when it overlaps the window at all and its
// motion sum meets MinMotion.
func BuildFromMotion(camera string, win window.TimeWindow, chunks []events.RecordingSegment, p Params) ([]Segment, Stats) {
	after := win.Start.Unix()
	before := win.End.Unix()

	stats := Stats{EventsTotal: len(chunks)}
	var candidates []candidate
	for _, chunk := range chunks {
		if int64(math.Ceil(chunk.EndTime)) <= after || int64(math.Floor(chunk.StartTime)) >= before {
			continue
		}
		if chunk.Motion < p.MinMotion {
			continue
		}
		stats.Matched++
		c, ok := pad(chunk.StartTime, chunk.EndTime, after, before, p)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}

	stats.RawSegments = len(candidates)
	merged := merge(candidates, int64(p.MergeGap))
	stats.MergedSegments = len(merged)
	return toSegments(camera, merged), stats
}

func pad(start, end float64, after, before int64, p Params) (candidate, bool) {
	if end < start {
		end = start
	}
	s := int64(math.Floor(start)) - int64(p.PrePad)
	e := int64(math.Ceil(end)) + int64(p.PostPad)
	if s < after {
		s = after
	}
	if e > before {
		e = before
	}
	if e-s < int64(p.MinSegmentLen) {
		return candidate{}, false
	}
	return candidate{start: s, end: e}, true
}

// merge performs the sweep union: sorted by start, two candidates join when
// the gap between them is at most mergeGap, which makes membership
// transitive across a chain of nearby candidates.
func merge(candidates []candidate, mergeGap int64) []candidate {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].start != sorted[j].start {
			return sorted[i].start < sorted[j].start
		}
		return sorted[i].end < sorted[j].end
	})

	merged := []candidate{cloneCandidate(sorted[0])}
	for _, c := range sorted[1:] {
		last := &merged[len(merged)-1]
		if c.start <= last.end+mergeGap {
			if c.end > last.end {
				last.end = c.end
			}
			last.labels = append(last.labels, c.labels...)
			continue
		}
		merged = append(merged, cloneCandidate(c))
	}
	return merged
}

func cloneCandidate(c candidate) candidate {
	clone := candidate{start: c.start, end: c.end}
	clone.labels = append(clone.labels, c.labels...)
	return clone
}

func toSegments(camera string, candidates []candidate) []Segment {
	segments := make([]Segment, 0, len(candidates))
	for _, c := range candidates {
		segments = append(segments, Segment{
			Start:  c.start,
			End:    c.end,
			Camera: camera,
			Labels: dedupe(c.labels),
		})
	}
	return segments
}

func dedupe(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
