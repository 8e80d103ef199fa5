package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteRecordingChunk places an epoch-named recording file under the
// UTC day/hour/camera layout the source index scans.
func WriteRecordingChunk(t testing.TB, root, camera string, ts int64) string {
	t.Helper()

	at := time.Unix(ts, 0).UTC()
	dir := filepath.Join(root, at.Format("2006-01-02"), at.Format("15"), camera)
	path := filepath.Join(dir, strconv.FormatInt(ts, 10)+".mp4")
	WriteFile(t, path, 1)
	return path
}
