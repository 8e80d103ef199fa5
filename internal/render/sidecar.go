package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/grafov/m3u8"

	"wildcut/internal/fileutil"
	"wildcut/internal/source"
)

// WritePlaylistSidecar emits an M3U playlist next to the output with one
// entry per resolved segment, titled with the local time range.
func WritePlaylistSidecar(path string, manifest *source.Manifest) error {
	count := uint(len(manifest.Segments))
	if count == 0 {
		count = 1
	}
	playlist, err := m3u8.NewMediaPlaylist(count, count)
	if err != nil {
		return fmt.Errorf("create playlist: %w", err)
	}

	loc := time.UTC
	if manifest.Timezone != "" {
		if parsed, err := time.LoadLocation(manifest.Timezone); err == nil {
			loc = parsed
		}
	}

	for _, entry := range manifest.Segments {
		uri := entry.Source.URL
		if entry.Source.Type == "disk" && len(entry.Source.Files) > 0 {
			uri = entry.Source.Files[0]
		}
		title := fmt.Sprintf("%s %s (%ds)",
			entry.Segment.Camera,
			time.Unix(entry.Segment.Start, 0).In(loc).Format("2006-01-02 15:04:05"),
			entry.Segment.Duration())
		if err := playlist.Append(uri, float64(entry.Segment.Duration()), title); err != nil {
			return fmt.Errorf("append playlist entry: %w", err)
		}
	}
	playlist.Close()

	return fileutil.WriteFileAtomic(path, playlist.Encode().Bytes(), 0o644)
}

// WriteChaptersSidecar emits an FFMETADATA chapter file with one chapter per
// resolved segment. Chapter offsets are accumulated output time, so with a
// speed factor the source durations are compressed accordingly.
func WriteChaptersSidecar(path string, manifest *source.Manifest, speedFactor float64) error {
	if speedFactor <= 0 {
		speedFactor = 1
	}

	loc := time.UTC
	if manifest.Timezone != "" {
		if parsed, err := time.LoadLocation(manifest.Timezone); err == nil {
			loc = parsed
		}
	}

	var sb strings.Builder
	sb.WriteString(";FFMETADATA1\n")
	var offsetMs int64
	for _, entry := range manifest.Segments {
		durationMs := int64(float64(entry.Segment.Duration()) * 1000 / speedFactor)
		title := time.Unix(entry.Segment.Start, 0).In(loc).Format("2006-01-02 15:04:05")
		if len(entry.Segment.Labels) > 0 {
			title += " (" + strings.Join(entry.Segment.Labels, ", ") + ")"
		}
		sb.WriteString("\n[CHAPTER]\n")
		sb.WriteString("TIMEBASE=1/1000\n")
		fmt.Fprintf(&sb, "START=%d\n", offsetMs)
		fmt.Fprintf(&sb, "END=%d\n", offsetMs+durationMs)
		fmt.Fprintf(&sb, "title=%s\n", escapeMetadata(title))
		offsetMs += durationMs
	}

	return fileutil.WriteFileAtomic(path, []byte(sb.String()), 0o644)
}

// escapeMetadata escapes the characters the FFMETADATA format treats
// specially.
func escapeMetadata(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"=", "\\=",
		";", "\\;",
		"#", "\\#",
		"\n", "\\\n",
	)
	return replacer.Replace(s)
}

// WriteManifestSidecar dumps the manifest as indented JSON for diagnosis.
func WriteManifestSidecar(path string, manifest *source.Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}
