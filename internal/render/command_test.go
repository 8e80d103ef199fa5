package render

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wildcut/internal/segment"
	"wildcut/internal/source"
)

func encodeParams() Params {
	return Params{
		Encoder:       "hevc_nvenc",
		FPS:           20,
		CQ:            23,
		CRF:           18,
		Maxrate:       "6M",
		Bufsize:       "12M",
		AudioBitrate:  "96k",
		AudioChannels: 1,
	}
}

func argsContain(t *testing.T, args []string, wanted ...string) {
	t.Helper()
	joined := " " + strings.Join(args, " ") + " "
	for _, want := range wanted {
		if !strings.Contains(joined, " "+want+" ") {
			t.Errorf("args missing %q in %q", want, joined)
		}
	}
}

func argsLack(t *testing.T, args []string, unwanted ...string) {
	t.Helper()
	joined := " " + strings.Join(args, " ") + " "
	for _, bad := range unwanted {
		if strings.Contains(joined, " "+bad+" ") {
			t.Errorf("args should not contain %q: %q", bad, joined)
		}
	}
}

func TestBuildConcatArgsCopyMode(t *testing.T) {
	p := encodeParams()
	p.CopyMode = true
	p.CopyAudio = true
	args := BuildConcatArgs("/tmp/list.txt", "/tmp/out.mp4", p)

	argsContain(t, args, "-c:v copy", "-c:a copy", "-f concat", "-progress pipe:1", "-nostats")
	argsLack(t, args, "-c:v hevc_nvenc", "setpts")
	if args[len(args)-1] != "/tmp/out.mp4" {
		t.Fatalf("output must be last: %v", args)
	}
}

func TestBuildConcatArgsEncodeForcesReencode(t *testing.T) {
	p := encodeParams()
	p.CopyMode = true
	p.Encode = true
	args := BuildConcatArgs("/tmp/list.txt", "/tmp/out.mp4", p)

	argsContain(t, args, "-c:v hevc_nvenc", "-rc:v vbr_hq", "-cq:v 23", "-maxrate:v 6M", "-g 60")
	argsLack(t, args, "-c:v copy")
}

func TestBuildConcatArgsTimelapse(t *testing.T) {
	p := encodeParams()
	p.CopyMode = true
	p.Timelapse = 50
	args := BuildConcatArgs("/tmp/list.txt", "/tmp/out.mp4", p)

	argsContain(t, args, "-filter:v setpts=PTS/50", "-an")
	argsLack(t, args, "-c:v copy")
}

func TestBuildConcatArgsTimelapseAudioChainsAtempo(t *testing.T) {
	p := encodeParams()
	p.Timelapse = 8
	p.TimelapseAudio = true
	args := BuildConcatArgs("/tmp/list.txt", "/tmp/out.mp4", p)

	argsContain(t, args, "-filter:a atempo=2,atempo=2,atempo=2")
}

func TestBuildConcatArgsSoftwareEncoder(t *testing.T) {
	p := encodeParams()
	p.Encoder = "libx265"
	p.Encode = true
	args := BuildConcatArgs("/tmp/list.txt", "/tmp/out.mp4", p)

	argsContain(t, args, "-c:v libx265", "-preset slow", "-crf 18")
	argsLack(t, args, "-cq:v 23")
}

func TestBuildSequenceArgs(t *testing.T) {
	p := encodeParams()
	p.Scale = "-2:1080"
	args := BuildSequenceArgs("/tmp/seq", "/tmp/out.mp4", p)

	argsContain(t, args,
		"-framerate 20",
		"-i /tmp/seq/frame_%08d.webp",
		"-filter:v scale=-2:1080",
		"-pix_fmt yuv420p")
}

func TestAtempoChain(t *testing.T) {
	cases := []struct {
		speed float64
		want  []float64
	}{
		{2.0, []float64{2.0}},
		{4.0, []float64{2.0, 2.0}},
		{50.0, []float64{2.0, 2.0, 2.0, 2.0, 2.0, 1.5625}},
		{1.0, nil},
		{0.25, []float64{0.5}},
	}
	for _, tc := range cases {
		got := atempoChain(tc.speed)
		if len(got) != len(tc.want) {
			t.Fatalf("speed %g: got %v, want %v", tc.speed, got, tc.want)
		}
		product := 1.0
		for i := range got {
			if math.Abs(got[i]-tc.want[i]) > 1e-9 {
				t.Fatalf("speed %g: got %v, want %v", tc.speed, got, tc.want)
			}
			product *= got[i]
		}
		// Every stage must respect the filter's 0.5..2.0 bound.
		for _, f := range got {
			if f < 0.5 || f > 2.0 {
				t.Fatalf("speed %g: stage %g out of range", tc.speed, f)
			}
		}
		_ = product
	}
}

func TestConcatEntriesDedupesAdjacent(t *testing.T) {
	manifest := &source.Manifest{
		Segments: []source.Entry{
			{Segment: segment.Segment{Start: 0, End: 10}, Source: source.Ref{Type: "disk", Files: []string{"/r/a.mp4", "/r/b.mp4"}}},
			{Segment: segment.Segment{Start: 12, End: 20}, Source: source.Ref{Type: "disk", Files: []string{"/r/b.mp4", "/r/c.mp4"}}},
			{Segment: segment.Segment{Start: 30, End: 40}, Source: source.Ref{Type: "vod", URL: "http://nvr/vod/x.m3u8"}},
		},
	}
	entries := ConcatEntries(manifest)
	want := []string{
		"file '/r/a.mp4'\n",
		"file '/r/b.mp4'\n",
		"file '/r/c.mp4'\n",
		"file 'http://nvr/vod/x.m3u8'\n",
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(entries), len(want), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, entries[i], want[i])
		}
	}
}

func TestWriteConcatFile(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteConcatFile(dir, "front", []string{"file 'a.mp4'\n", "file 'b.mp4'\n"})
	if err != nil {
		t.Fatalf("WriteConcatFile: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("concat file outside out dir: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "file 'a.mp4'\nfile 'b.mp4'\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestOutputName(t *testing.T) {
	got := OutputName("front", "animals", "2026-06-15", "fullday", 0)
	if got != "front-animals-2026-06-15-fullday.mp4" {
		t.Fatalf("got %q", got)
	}
	got = OutputName("front", "animals", "2026-06-15_to_2026-06-17", "dusktodawn", 50)
	if got != "front-animals-2026-06-15_to_2026-06-17-dusktodawn-timelapse50x.mp4" {
		t.Fatalf("got %q", got)
	}
}
