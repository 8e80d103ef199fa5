package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"wildcut/internal/config"
	"wildcut/internal/events"
	"wildcut/internal/jobs"
	"wildcut/internal/logging"
	"wildcut/internal/services"
	"wildcut/internal/upload"
)

// dayStart is 2026-06-15T00:00:00Z.
const dayStart int64 = 1781481600

type fakeNVR struct {
	events []events.Event
	review []events.ReviewItem
}

func (f *fakeNVR) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.events)
	})
	mux.HandleFunc("/api/review", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.review)
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"0.15"`))
	})
	return mux
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	defaults := config.Default()
	cfg := &defaults

	dir := t.TempDir()
	cfg.Paths.RecordingsDir = filepath.Join(dir, "recordings")
	cfg.Paths.RecordingsFallbacks = nil
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.Paths.FrameCacheDir = filepath.Join(dir, "cache")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	for _, sub := range []string{"recordings", "out", "cache", "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	cfg.Frigate.BaseURL = baseURL
	cfg.Frigate.MaxRetries = 0
	cfg.Location.Timezone = "UTC"
	cfg.Labels.Include = []string{"dog", "cat"}
	cfg.Labels.Exclude = nil
	return cfg
}

func testPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

type progressRecorder struct {
	mu     sync.Mutex
	phases []string
}

func (r *progressRecorder) callbacks() jobs.Callbacks {
	return jobs.Callbacks{
		OnProgress: func(p jobs.Progress) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if len(r.phases) == 0 || r.phases[len(r.phases)-1] != p.Phase {
				r.phases = append(r.phases, p.Phase)
			}
		},
		OnStarted: func(int) {},
		Logger:    logging.NewNop(),
	}
}

func (r *progressRecorder) sawPhase(phase string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.phases {
		if p == phase {
			return true
		}
	}
	return false
}

func floatPtr(v float64) *float64 { return &v }

func montageJob(args *jobs.MontageArgs) *jobs.Job {
	return &jobs.Job{ID: "job-1", Type: jobs.TypeMontage, Camera: "front", Arguments: args}
}

func TestMontageDryRun(t *testing.T) {
	nvr := &fakeNVR{events: []events.Event{
		{ID: "e1", Camera: "front", Label: "dog", StartTime: float64(dayStart + 18400),
			EndTime: floatPtr(float64(dayStart + 18420)), Score: 0.9, HasClip: true},
	}}
	server := httptest.NewServer(nvr.handler())
	defer server.Close()

	cfg := testConfig(t, server.URL)
	p := testPipeline(t, cfg)

	rec := &progressRecorder{}
	job := montageJob(&jobs.MontageArgs{StartDate: "2026-06-15", DryRun: true})
	outcome, err := p.Execute(context.Background(), job, rec.callbacks())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.OutputPath != "" {
		t.Fatalf("dry run produced output %q", outcome.OutputPath)
	}
	for _, phase := range []string{"windows", "collect", "resolve"} {
		if !rec.sawPhase(phase) {
			t.Errorf("missing %s phase, saw %v", phase, rec.phases)
		}
	}
}

func TestMontageNoMatchingEvents(t *testing.T) {
	server := httptest.NewServer((&fakeNVR{}).handler())
	defer server.Close()

	p := testPipeline(t, testConfig(t, server.URL))

	rec := &progressRecorder{}
	job := montageJob(&jobs.MontageArgs{StartDate: "2026-06-15", DryRun: true})
	_, err := p.Execute(context.Background(), job, rec.callbacks())
	if err == nil {
		t.Fatal("expected an error with no events")
	}
	if !errors.Is(err, services.ErrPartialData) {
		t.Fatalf("expected partial data error, got %v", err)
	}
}

func TestMontageRejectsBadWindowMode(t *testing.T) {
	server := httptest.NewServer((&fakeNVR{}).handler())
	defer server.Close()

	p := testPipeline(t, testConfig(t, server.URL))

	rec := &progressRecorder{}
	job := montageJob(&jobs.MontageArgs{StartDate: "2026-06-15", Mode: "sideways"})
	_, err := p.Execute(context.Background(), job, rec.callbacks())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestMotionPlaylistWritesFile(t *testing.T) {
	nvr := &fakeNVR{review: []events.ReviewItem{
		{ID: "r1", Camera: "front", StartTime: float64(dayStart + 100),
			EndTime: floatPtr(float64(dayStart + 130)), Severity: "detection"},
		{ID: "r2", Camera: "front", StartTime: float64(dayStart + 500),
			EndTime: floatPtr(float64(dayStart + 520)), Severity: "significant_motion"},
	}}
	server := httptest.NewServer(nvr.handler())
	defer server.Close()

	cfg := testConfig(t, server.URL)
	p := testPipeline(t, cfg)

	rec := &progressRecorder{}
	job := &jobs.Job{ID: "job-2", Type: jobs.TypeMotionPlaylist, Camera: "front",
		Arguments: &jobs.MotionPlaylistArgs{StartDate: "2026-06-15"}}
	outcome, err := p.Execute(context.Background(), job, rec.callbacks())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := filepath.Join(cfg.Paths.OutputDir, "front-motion-2026-06-15.m3u8")
	if outcome.OutputPath != want {
		t.Fatalf("output path = %q, want %q", outcome.OutputPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read playlist: %v", err)
	}
	if !strings.Contains(string(data), "front") {
		t.Fatalf("playlist missing camera entries:\n%s", data)
	}
}

func TestMotionPlaylistEmptyRange(t *testing.T) {
	server := httptest.NewServer((&fakeNVR{}).handler())
	defer server.Close()

	p := testPipeline(t, testConfig(t, server.URL))

	rec := &progressRecorder{}
	job := &jobs.Job{ID: "job-3", Type: jobs.TypeMotionPlaylist, Camera: "front",
		Arguments: &jobs.MotionPlaylistArgs{StartDate: "2026-06-15"}}
	if _, err := p.Execute(context.Background(), job, rec.callbacks()); !errors.Is(err, services.ErrPartialData) {
		t.Fatalf("expected partial data error, got %v", err)
	}
}

func TestTimelapseDryRunPlansFrames(t *testing.T) {
	server := httptest.NewServer((&fakeNVR{}).handler())
	defer server.Close()

	cfg := testConfig(t, server.URL)

	// Chunks every 10 seconds in the 05 UTC hour of the requested day.
	hourDir := filepath.Join(cfg.Paths.RecordingsDir, "2026-06-15", "05", "front")
	if err := os.MkdirAll(hourDir, 0o755); err != nil {
		t.Fatal(err)
	}
	base := dayStart + 5*3600
	for i := int64(0); i < 6; i++ {
		name := filepath.Join(hourDir, strconv.FormatInt(base+i*10, 10)+".mp4")
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	p := testPipeline(t, cfg)

	rec := &progressRecorder{}
	job := &jobs.Job{ID: "job-4", Type: jobs.TypeTimelapse, Camera: "front",
		Arguments: &jobs.TimelapseArgs{StartDate: "2026-06-15", IntervalSeconds: 20, DryRun: true}}
	outcome, err := p.Execute(context.Background(), job, rec.callbacks())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.OutputPath != "" {
		t.Fatalf("dry run produced output %q", outcome.OutputPath)
	}
	if !rec.sawPhase("scan") {
		t.Fatalf("missing scan phase, saw %v", rec.phases)
	}
}

func TestTimelapseNoRecordings(t *testing.T) {
	server := httptest.NewServer((&fakeNVR{}).handler())
	defer server.Close()

	p := testPipeline(t, testConfig(t, server.URL))

	rec := &progressRecorder{}
	job := &jobs.Job{ID: "job-5", Type: jobs.TypeTimelapse, Camera: "front",
		Arguments: &jobs.TimelapseArgs{StartDate: "2026-06-15", DryRun: true}}
	if _, err := p.Execute(context.Background(), job, rec.callbacks()); !errors.Is(err, services.ErrPartialData) {
		t.Fatalf("expected partial data error, got %v", err)
	}
}

type fakeUploader struct {
	uploaded []string
}

func (f *fakeUploader) Upload(ctx context.Context, filePath string, meta upload.Metadata, onProgress func(float64)) (*upload.Result, error) {
	f.uploaded = append(f.uploaded, filePath)
	if onProgress != nil {
		onProgress(100)
	}
	return &upload.Result{VideoID: "vid1", URL: "https://www.youtube.com/watch?v=vid1"}, nil
}

func TestMaybeUploadGating(t *testing.T) {
	server := httptest.NewServer((&fakeNVR{}).handler())
	defer server.Close()

	cfg := testConfig(t, server.URL)
	cfg.Upload.Enabled = true
	p := testPipeline(t, cfg)

	fake := &fakeUploader{}
	p.newUploader = func(ctx context.Context) (uploader, error) { return fake, nil }

	rec := &progressRecorder{}
	cb := rec.callbacks()

	if err := p.maybeUpload(context.Background(), false, "/out/a.mp4", "t", cb); err != nil {
		t.Fatalf("disabled upload: %v", err)
	}
	if len(fake.uploaded) != 0 {
		t.Fatal("upload ran despite the job not asking for it")
	}

	if err := p.maybeUpload(context.Background(), true, "/out/a.mp4", "t", cb); err != nil {
		t.Fatalf("maybeUpload: %v", err)
	}
	if len(fake.uploaded) != 1 || fake.uploaded[0] != "/out/a.mp4" {
		t.Fatalf("uploaded = %v", fake.uploaded)
	}
	if !rec.sawPhase("upload") {
		t.Fatalf("missing upload phase, saw %v", rec.phases)
	}

	cfg.Upload.Enabled = false
	if err := p.maybeUpload(context.Background(), true, "/out/b.mp4", "t", cb); err != nil {
		t.Fatalf("globally disabled upload: %v", err)
	}
	if len(fake.uploaded) != 1 {
		t.Fatal("upload ran despite being disabled in config")
	}
}
