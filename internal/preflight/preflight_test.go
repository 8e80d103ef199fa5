package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wildcut/internal/config"
)

func TestCheckDirectoryReadable(t *testing.T) {
	dir := t.TempDir()
	if result := CheckDirectoryReadable("test", dir); !result.Passed {
		t.Fatalf("readable dir failed: %+v", result)
	}
	if result := CheckDirectoryReadable("test", filepath.Join(dir, "missing")); result.Passed {
		t.Fatal("missing dir should fail")
	}

	file := filepath.Join(dir, "file")
	_ = os.WriteFile(file, []byte("x"), 0o644)
	if result := CheckDirectoryReadable("test", file); result.Passed {
		t.Fatal("regular file should fail")
	}
}

func TestCheckDirectoryWritable(t *testing.T) {
	dir := t.TempDir()
	if result := CheckDirectoryWritable("test", dir); !result.Passed {
		t.Fatalf("writable dir failed: %+v", result)
	}
	if os.Geteuid() != 0 {
		readonly := filepath.Join(dir, "ro")
		_ = os.Mkdir(readonly, 0o555)
		if result := CheckDirectoryWritable("test", readonly); result.Passed {
			t.Fatal("read-only dir should fail")
		}
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("tiny requirement should pass: %+v", result)
	}
	if result := CheckFreeSpace("space", dir, 1<<62); result.Passed {
		t.Fatal("absurd requirement should fail")
	}
}

func TestCheckEventsAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`"0.14.1"`))
	}))
	defer server.Close()

	defaults := config.Default()
	cfg := &defaults
	cfg.Frigate.BaseURL = server.URL
	result := CheckEventsAPI(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("reachable API failed: %+v", result)
	}

	server.Close()
	result = CheckEventsAPI(context.Background(), cfg)
	if result.Passed {
		t.Fatal("unreachable API should fail")
	}
}

func TestRunAllReportsFailures(t *testing.T) {
	defaults := config.Default()
	cfg := &defaults
	dir := t.TempDir()
	cfg.Paths.RecordingsDir = filepath.Join(dir, "missing-recordings")
	cfg.Paths.RecordingsFallbacks = nil
	cfg.Paths.OutputDir = dir
	cfg.Paths.FrameCacheDir = dir
	cfg.Frigate.BaseURL = "http://127.0.0.1:1" // nothing listens here

	results := RunAll(context.Background(), cfg)
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if Passed(results) {
		t.Fatal("missing recordings and dead API should fail overall")
	}

	var sawRecordings bool
	for _, result := range results {
		if result.Name == "Recordings directory" && strings.Contains(result.Detail, "does not exist") {
			sawRecordings = true
		}
	}
	if !sawRecordings {
		t.Fatalf("recordings failure not reported: %+v", results)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	statuses := CheckSystemDeps(context.Background(), nil)
	if len(statuses) != 2 {
		t.Fatalf("expected ffmpeg and ffprobe checks, got %+v", statuses)
	}
}
