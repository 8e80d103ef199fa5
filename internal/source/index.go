// Package source resolves segments to stored recording files or remote VOD
// URLs and assembles the render manifest.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Chunk is one recording file keyed by its start timestamp.
type Chunk struct {
	TS   int64
	Path string
}

// Index is a sorted view of the recording chunks that may overlap a window.
type Index struct {
	chunks []Chunk
	// cadence is the typical spacing between chunk starts in seconds,
	// zero when it could not be estimated.
	cadence int64
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.chunks) }

// Chunks returns the indexed chunks in timestamp order.
func (idx *Index) Chunks() []Chunk { return idx.chunks }

// Cadence returns the estimated chunk spacing, zero if unknown.
func (idx *Index) Cadence() int64 { return idx.cadence }

// scanMargin widens the hour scan so chunks starting just outside the window
// but overlapping it are still indexed.
const scanMargin = 3600

// ScanIndex walks every UTC hour directory the window touches across the
// ordered roots and builds a chunk index. The first root containing a given
// timestamp wins; later roots only contribute chunks the earlier ones lack.
func ScanIndex(roots []string, camera string, after, before int64) (*Index, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("no recording roots configured")
	}

	byTS := map[int64]string{}
	scannedAny := false
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		scannedAny = true
		for _, hour := range utcHours(after, before) {
			dir := filepath.Join(root, hour.day, hour.hour, camera)
			names, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, entry := range names {
				name := entry.Name()
				if !strings.HasSuffix(name, ".mp4") {
					continue
				}
				ts, ok := parseFilenameTS(strings.TrimSuffix(name, ".mp4"), hour.day, hour.hour)
				if !ok {
					continue
				}
				if ts < after-scanMargin || ts > before+scanMargin {
					continue
				}
				if _, exists := byTS[ts]; exists {
					continue
				}
				byTS[ts] = filepath.Join(dir, name)
			}
		}
	}
	if !scannedAny {
		return nil, fmt.Errorf("no recording root exists: %s", strings.Join(roots, ", "))
	}

	chunks := make([]Chunk, 0, len(byTS))
	for ts, path := range byTS {
		chunks = append(chunks, Chunk{TS: ts, Path: path})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].TS < chunks[j].TS })

	return &Index{chunks: chunks, cadence: estimateCadence(chunks)}, nil
}

type hourBucket struct {
	day  string
	hour string
}

func utcHours(after, before int64) []hourBucket {
	var hours []hourBucket
	cur := time.Unix(after, 0).UTC().Truncate(time.Hour)
	end := time.Unix(before, 0).UTC()
	for cur.Before(end) {
		hours = append(hours, hourBucket{
			day:  cur.Format("2006-01-02"),
			hour: cur.Format("15"),
		})
		cur = cur.Add(time.Hour)
	}
	return hours
}

// parseFilenameTS handles both naming forms found on disk: a bare epoch
// (NNNNNNNNNN.mp4) and minute.second within the hour folder (MM.SS.mp4).
// The date/hour folder structure is UTC.
func parseFilenameTS(base, day, hour string) (int64, bool) {
	if len(base) > 4 && allDigits(base) {
		ts, err := strconv.ParseInt(base, 10, 64)
		if err != nil {
			return 0, false
		}
		return ts, true
	}

	parts := strings.Split(base, ".")
	if len(parts) != 2 || !allDigits(parts[0]) || !allDigits(parts[1]) {
		return 0, false
	}
	mm, _ := strconv.Atoi(parts[0])
	ss, _ := strconv.Atoi(parts[1])
	if mm > 59 || ss > 59 {
		return 0, false
	}
	t, err := time.Parse("2006-01-02 15", day+" "+hour)
	if err != nil {
		return 0, false
	}
	return t.Add(time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second).Unix(), true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// estimateCadence takes the median of inter-chunk gaps, ignoring gaps over a
// minute (missing stretches must not skew the estimate).
func estimateCadence(chunks []Chunk) int64 {
	var diffs []int64
	for i := 1; i < len(chunks); i++ {
		d := chunks[i].TS - chunks[i-1].TS
		if d > 0 && d <= 60 {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return 0
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })
	mid := len(diffs) / 2
	if len(diffs)%2 == 1 {
		return diffs[mid]
	}
	return (diffs[mid-1] + diffs[mid] + 1) / 2
}

// FilesForSegment selects the minimal chunk run likely covering
// [segStart, segEnd): the last chunk starting at or before segStart, then
// every chunk starting before segEnd. When the cadence is known, slop
// multipliers bound how far the segment may extend past the chosen chunks
// before coverage is declared missing.
func (idx *Index) FilesForSegment(segStart, segEnd int64, startSlop, endSlop float64) ([]string, string) {
	if len(idx.chunks) == 0 {
		return nil, "empty index"
	}

	pos := sort.Search(len(idx.chunks), func(i int) bool {
		return idx.chunks[i].TS > segStart
	}) - 1
	if pos < 0 {
		return nil, "no chunk starts before segment start"
	}

	selected := []Chunk{}
	for i := pos; i < len(idx.chunks) && idx.chunks[i].TS < segEnd; i++ {
		selected = append(selected, idx.chunks[i])
	}
	if len(selected) == 0 {
		selected = []Chunk{idx.chunks[pos]}
	}

	if idx.cadence > 0 {
		startTol := int64(startSlop*float64(idx.cadence) + 0.5)
		endTol := int64(endSlop*float64(idx.cadence) + 0.5)
		first := selected[0].TS
		last := selected[len(selected)-1].TS
		if segStart > first+startTol {
			return nil, fmt.Sprintf("gap before start (segment %d begins %ds after chunk %d, cadence ~%ds)",
				segStart, segStart-first, first, idx.cadence)
		}
		if segEnd > last+endTol {
			return nil, fmt.Sprintf("end beyond chunks (segment end %d is %ds past last chunk %d, cadence ~%ds)",
				segEnd, segEnd-last, last, idx.cadence)
		}
	}

	files := make([]string, 0, len(selected))
	for _, chunk := range selected {
		files = append(files, chunk.Path)
	}
	return files, ""
}
