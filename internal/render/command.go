// Package render builds transcoder invocations for montage and timelapse
// outputs, supervises the subprocess, and writes sidecar artifacts.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"wildcut/internal/source"
)

// protocolWhitelist lets the concat demuxer mix local files and HTTPS VOD
// URLs in one list.
const protocolWhitelist = "file,http,https,tcp,tls,crypto"

const gopSeconds = 3

// Params are the resolved render settings for one invocation.
type Params struct {
	Encoder       string
	Preset        string
	FPS           int
	CQ            int
	CRF           int
	Maxrate       string
	Bufsize       string
	AQStrength    int
	AudioBitrate  string
	AudioChannels int

	// CopyMode concatenates without re-encoding. Encode forces a re-encode
	// even when CopyMode would otherwise apply.
	CopyMode  bool
	CopyAudio bool
	Encode    bool

	// Timelapse > 0 compresses time by that factor (always re-encodes).
	Timelapse      float64
	TimelapseAudio bool

	Scale string
}

func (p Params) preset() string {
	if p.Preset != "" {
		return p.Preset
	}
	switch {
	case isSoftware(p.Encoder):
		return "slow"
	case isQSV(p.Encoder):
		return "medium"
	default:
		return "p5"
	}
}

func isNVENC(encoder string) bool {
	return encoder == "hevc_nvenc" || encoder == "h264_nvenc"
}

func isQSV(encoder string) bool {
	return encoder == "hevc_qsv" || encoder == "h264_qsv"
}

func isVAAPI(encoder string) bool {
	return encoder == "hevc_vaapi" || encoder == "h264_vaapi"
}

func isSoftware(encoder string) bool {
	return encoder == "libx265" || encoder == "libx264"
}

// SupportedEncoder reports whether the encoder name is one the command
// builder knows how to drive.
func SupportedEncoder(encoder string) bool {
	return isNVENC(encoder) || isQSV(encoder) || isVAAPI(encoder) || isSoftware(encoder)
}

// ConcatEntries flattens manifest sources into concat demuxer lines,
// deduplicating adjacent repeats (neighbouring segments often share a chunk).
func ConcatEntries(manifest *source.Manifest) []string {
	var entries []string
	last := ""
	add := func(ref string) {
		if ref == last {
			return
		}
		entries = append(entries, fmt.Sprintf("file '%s'\n", ref))
		last = ref
	}
	for _, seg := range manifest.Segments {
		if seg.Source.Type == "disk" {
			for _, path := range seg.Source.Files {
				add(path)
			}
			continue
		}
		add(seg.Source.URL)
	}
	return entries
}

// WriteConcatFile writes concat entries to a real file in dir. The list must
// be a file rather than stdin: with stdin the demuxer can misread entries as
// fd:/ paths.
func WriteConcatFile(dir, camera string, entries []string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf(".concat_%s_%d.txt", camera, time.Now().UnixNano()))
	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString(entry)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat file: %w", err)
	}
	return path, nil
}

// atempoChain decomposes a speed factor into atempo stages. A single stage
// is limited to 0.5..2.0, so larger factors chain stages of 2.0 with a
// clamped remainder.
func atempoChain(speed float64) []float64 {
	var factors []float64
	remaining := speed
	for remaining > 2.0+1e-9 {
		factors = append(factors, 2.0)
		remaining /= 2.0
	}
	if remaining < 1.0-1e-9 || remaining > 1.0+1e-9 {
		if remaining < 0.5 {
			remaining = 0.5
		}
		if remaining > 2.0 {
			remaining = 2.0
		}
		factors = append(factors, remaining)
	}
	return factors
}

func atempoFilter(speed float64) string {
	factors := atempoChain(speed)
	parts := make([]string, 0, len(factors))
	for _, f := range factors {
		text := strconv.FormatFloat(f, 'f', 6, 64)
		text = strings.TrimRight(strings.TrimRight(text, "0"), ".")
		parts = append(parts, "atempo="+text)
	}
	return strings.Join(parts, ",")
}

// BuildConcatArgs assembles the full transcoder argument list for segment
// concat mode (montage), including the machine-readable progress stream.
func BuildConcatArgs(concatPath, outPath string, p Params) []string {
	copyMode := p.CopyMode && !p.Encode && p.Timelapse <= 0
	copyAudio := p.CopyAudio && copyMode

	args := []string{
		"-y",
		"-protocol_whitelist", protocolWhitelist,
		"-f", "concat", "-safe", "0",
		"-i", concatPath,
	}

	if copyMode {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args, "-r", strconv.Itoa(p.FPS))
		args = append(args, encoderArgs(p)...)
		args = append(args, "-g", strconv.Itoa(gopSeconds*p.FPS))
	}

	if p.Timelapse > 0 {
		args = append(args, "-filter:v", fmt.Sprintf("setpts=PTS/%g", p.Timelapse))
	}

	switch {
	case p.Timelapse > 0 && !p.TimelapseAudio:
		args = append(args, "-an")
	case copyAudio:
		args = append(args, "-c:a", "copy")
	default:
		args = append(args,
			"-c:a", "aac",
			"-b:a", p.AudioBitrate,
			"-ac", strconv.Itoa(p.AudioChannels),
			"-ar", "48000")
		if p.Timelapse > 0 && p.TimelapseAudio {
			args = append(args, "-filter:a", atempoFilter(p.Timelapse))
		}
	}

	args = append(args, "-movflags", "+faststart")
	args = append(args, "-progress", "pipe:1", "-nostats")
	args = append(args, outPath)
	return args
}

// BuildSequenceArgs assembles the argument list for frame sequence mode
// (timelapse from sampled frames).
func BuildSequenceArgs(seqDir, outPath string, p Params) []string {
	pattern := filepath.Join(seqDir, "frame_%08d.webp")
	args := []string{
		"-y", "-hide_banner",
		"-framerate", strconv.Itoa(p.FPS),
		"-i", pattern,
	}
	if p.Scale != "" {
		args = append(args, "-filter:v", "scale="+p.Scale)
	}
	args = append(args, encoderArgs(p)...)
	args = append(args, "-pix_fmt", "yuv420p", "-movflags", "+faststart")
	args = append(args, "-progress", "pipe:1", "-nostats")
	args = append(args, outPath)
	return args
}

func encoderArgs(p Params) []string {
	preset := p.preset()
	switch {
	case isNVENC(p.Encoder):
		args := []string{
			"-c:v", p.Encoder,
			"-preset", preset,
			"-rc:v", "vbr_hq",
			"-cq:v", strconv.Itoa(p.CQ),
			"-spatial-aq", "1",
			"-temporal-aq", "1",
			"-aq-strength", strconv.Itoa(aqStrength(p)),
			"-b:v", "0",
		}
		if p.Maxrate != "" {
			args = append(args, "-maxrate:v", p.Maxrate)
		}
		if p.Bufsize != "" {
			args = append(args, "-bufsize:v", p.Bufsize)
		}
		return args
	case isQSV(p.Encoder):
		args := []string{
			"-c:v", p.Encoder,
			"-preset", preset,
			"-global_quality", strconv.Itoa(p.CQ),
		}
		if p.Maxrate != "" {
			args = append(args, "-maxrate", p.Maxrate)
		}
		if p.Bufsize != "" {
			args = append(args, "-bufsize", p.Bufsize)
		}
		return args
	case isVAAPI(p.Encoder):
		args := []string{
			"-vaapi_device", "/dev/dri/renderD128",
			"-c:v", p.Encoder,
			"-qp", strconv.Itoa(p.CQ),
		}
		if p.Maxrate != "" {
			args = append(args, "-maxrate", p.Maxrate)
		}
		if p.Bufsize != "" {
			args = append(args, "-bufsize", p.Bufsize)
		}
		return args
	default:
		return []string{
			"-c:v", p.Encoder,
			"-preset", preset,
			"-crf", strconv.Itoa(p.CRF),
		}
	}
}

func aqStrength(p Params) int {
	if p.AQStrength > 0 {
		return p.AQStrength
	}
	return 8
}
