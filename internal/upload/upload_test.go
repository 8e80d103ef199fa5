package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"wildcut/internal/logging"
	"wildcut/internal/services"
)

// fakeResumableServer speaks enough of the resumable upload protocol to
// exercise chunking, 308 acknowledgements, and transient failures.
type fakeResumableServer struct {
	mu        sync.Mutex
	received  []byte
	total     int64
	fail      map[int]int // chunk request index -> times to 503 it
	chunkSeen int
}

func (f *fakeResumableServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "bad method", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Location", "http://"+r.Host+"/session")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		contentRange := r.Header.Get("Content-Range")
		if strings.Contains(contentRange, "bytes */") {
			f.writeIncomplete(w)
			return
		}

		idx := f.chunkSeen
		f.chunkSeen++
		if remaining := f.fail[idx]; remaining > 0 {
			f.fail[idx] = remaining - 1
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}

		body, _ := io.ReadAll(r.Body)
		var start, end, total int64
		if _, err := fmt.Sscanf(contentRange, "bytes %d-%d/%d", &start, &end, &total); err != nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		f.total = total
		if int64(len(f.received)) != start {
			http.Error(w, "offset mismatch", http.StatusBadRequest)
			return
		}
		f.received = append(f.received, body...)

		if int64(len(f.received)) >= f.total {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"vid123"}`))
			return
		}
		f.writeIncomplete(w)
	})
	return mux
}

func (f *fakeResumableServer) writeIncomplete(w http.ResponseWriter) {
	if len(f.received) > 0 {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", len(f.received)-1))
	}
	w.WriteHeader(308)
}

func testUploader(t *testing.T, serverURL string, chunkSize int64) *Uploader {
	t.Helper()
	return &Uploader{
		client:     http.DefaultClient,
		uploadURL:  serverURL + "/upload",
		chunkSize:  chunkSize,
		privacy:    "unlisted",
		categoryID: "15",
		logger:     logging.NewNop(),
	}
}

func writeVideo(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUploadChunked(t *testing.T) {
	fake := &fakeResumableServer{fail: map[int]int{}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	uploader := testUploader(t, server.URL, 1024)
	path := writeVideo(t, 3000)

	var percents []float64
	result, err := uploader.Upload(context.Background(), path, Metadata{Title: "Front Animals"}, func(p float64) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.VideoID != "vid123" {
		t.Fatalf("video id = %q", result.VideoID)
	}
	if result.URL != "https://www.youtube.com/watch?v=vid123" {
		t.Fatalf("url = %q", result.URL)
	}
	if int64(len(fake.received)) != 3000 {
		t.Fatalf("server received %d bytes", len(fake.received))
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("progress percents %v", percents)
	}
}

func TestUploadRetriesTransientChunkFailure(t *testing.T) {
	fake := &fakeResumableServer{fail: map[int]int{1: 2}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	uploader := testUploader(t, server.URL, 1024)
	path := writeVideo(t, 2048)

	result, err := uploader.Upload(context.Background(), path, Metadata{Title: "t"}, nil)
	if err != nil {
		t.Fatalf("Upload should survive a flaky chunk: %v", err)
	}
	if result.VideoID != "vid123" {
		t.Fatalf("video id = %q", result.VideoID)
	}
}

func TestUploadAuthFailureIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	uploader := testUploader(t, server.URL, 1024)
	path := writeVideo(t, 100)

	_, err := uploader.Upload(context.Background(), path, Metadata{Title: "t"}, nil)
	if err == nil {
		t.Fatal("expected auth failure")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestParseRangeEnd(t *testing.T) {
	cases := []struct {
		header string
		want   int64
	}{
		{"bytes=0-1048575", 1048576},
		{"bytes=0-0", 1},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := parseRangeEnd(tc.header); got != tc.want {
			t.Errorf("parseRangeEnd(%q) = %d, want %d", tc.header, got, tc.want)
		}
	}
}

func TestVideoTitle(t *testing.T) {
	if got := VideoTitle("front_yard", "animals", "2026-06-15"); got != "Front Yard Animals 2026-06-15" {
		t.Fatalf("got %q", got)
	}
	if got := VideoTitle("front", "", "2026-06-15"); got != "Front 2026-06-15" {
		t.Fatalf("got %q", got)
	}
}

func TestOauthClientRejectsBadTokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	_ = os.WriteFile(path, []byte(`{"client_id":"x"}`), 0o600)

	if _, err := oauthClient(context.Background(), path); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing refresh token should be a configuration error, got %v", err)
	}
	if _, err := oauthClient(context.Background(), filepath.Join(dir, "nope.json")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing file should be a configuration error, got %v", err)
	}
}
