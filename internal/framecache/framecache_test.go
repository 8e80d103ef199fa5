package framecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"wildcut/internal/logging"
	"wildcut/internal/source"
)

type fakeExtractor struct {
	mu       sync.Mutex
	calls    atomic.Int32
	inflight map[string]int
	overlap  atomic.Bool
	failFor  map[string]error
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{inflight: map[string]int{}, failFor: map[string]error{}}
}

func (f *fakeExtractor) ExtractFrame(_ context.Context, src, dst string) error {
	f.mu.Lock()
	f.inflight[src]++
	if f.inflight[src] > 1 {
		f.overlap.Store(true)
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight[src]--
		f.mu.Unlock()
	}()

	f.calls.Add(1)
	if err, ok := f.failFor[src]; ok {
		return err
	}
	return os.WriteFile(dst, []byte("frame:"+src), 0o644)
}

func chunksEvery(start, end, step int64) []source.Chunk {
	var chunks []source.Chunk
	for ts := start; ts < end; ts += step {
		chunks = append(chunks, source.Chunk{TS: ts, Path: fmt.Sprintf("/rec/%d.mp4", ts)})
	}
	return chunks
}

func TestPlanKeepsFirstChunkPerBucket(t *testing.T) {
	chunks := chunksEvery(1000, 1100, 10)
	samples := Plan(chunks, 1000, 30)
	// Buckets: [1000,1030) [1030,1060) [1060,1090) [1090,1120)
	if len(samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(samples))
	}
	want := []int64{1000, 1030, 1060, 1090}
	for i, sample := range samples {
		if sample.TS != want[i] {
			t.Fatalf("bucket %d picked ts %d, want %d", i, sample.TS, want[i])
		}
	}
}

func TestPlanSupersetAcrossIntervalMultiples(t *testing.T) {
	chunks := chunksEvery(5000, 8600, 10)
	fine := Plan(chunks, 5000, 60)
	coarse := Plan(chunks, 5000, 180)

	fineSet := map[int64]struct{}{}
	for _, sample := range fine {
		fineSet[sample.TS] = struct{}{}
	}
	for _, sample := range coarse {
		if _, ok := fineSet[sample.TS]; !ok {
			t.Fatalf("coarse sample ts %d not chosen by the finer run", sample.TS)
		}
	}
}

func TestMaterializeCachesAndReuses(t *testing.T) {
	dir := t.TempDir()
	extractor := newFakeExtractor()
	cache := New(filepath.Join(dir, "cache"), 4, extractor, logging.NewNop())

	chunks := chunksEvery(1000, 1200, 10)
	samples := Plan(chunks, 1000, 20)

	stats, err := cache.Materialize(context.Background(), "front", samples, filepath.Join(dir, "seq1"), nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if stats.Extracted != len(samples) || stats.Hits != 0 {
		t.Fatalf("first run should extract everything: %+v", stats)
	}
	firstCalls := extractor.calls.Load()

	stats, err = cache.Materialize(context.Background(), "front", samples, filepath.Join(dir, "seq2"), nil)
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	if stats.Hits != len(samples) || stats.Extracted != 0 {
		t.Fatalf("second run must be all cache hits: %+v", stats)
	}
	if extractor.calls.Load() != firstCalls {
		t.Fatalf("second run performed extractions: %d -> %d", firstCalls, extractor.calls.Load())
	}
}

func TestMaterializeSerializesPerKey(t *testing.T) {
	dir := t.TempDir()
	extractor := newFakeExtractor()
	cache := New(filepath.Join(dir, "cache"), 8, extractor, logging.NewNop())

	// Many samples mapping to the same chunk (and so the same cache key).
	samples := make([]Sample, 16)
	for i := range samples {
		samples[i] = Sample{Bucket: int64(i), TS: 5000, Path: "/rec/5000.mp4"}
	}

	if _, err := cache.Materialize(context.Background(), "front", samples, filepath.Join(dir, "seq"), nil); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if extractor.overlap.Load() {
		t.Fatal("concurrent extractions observed for the same key")
	}
}

func TestMaterializeDropsFailuresAndRenumbers(t *testing.T) {
	dir := t.TempDir()
	extractor := newFakeExtractor()
	extractor.failFor["/rec/1020.mp4"] = errors.New("decode error")
	cache := New(filepath.Join(dir, "cache"), 2, extractor, logging.NewNop())

	samples := Plan(chunksEvery(1000, 1060, 10), 1000, 10)
	seqDir := filepath.Join(dir, "seq")

	stats, err := cache.Materialize(context.Background(), "front", samples, seqDir, nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", stats)
	}
	if stats.FramesKept != len(samples)-1 {
		t.Fatalf("expected %d kept frames, got %+v", len(samples)-1, stats)
	}
	for i := 0; i < stats.FramesKept; i++ {
		path := filepath.Join(seqDir, fmt.Sprintf("frame_%08d.webp", i))
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("sequence has a gap at %d: %v", i, err)
		}
	}
}

func TestMaterializeReportsProgress(t *testing.T) {
	dir := t.TempDir()
	cache := New(filepath.Join(dir, "cache"), 2, newFakeExtractor(), logging.NewNop())
	samples := Plan(chunksEvery(0, 100, 10), 0, 10)

	var reports atomic.Int32
	_, err := cache.Materialize(context.Background(), "front", samples, filepath.Join(dir, "seq"), func(done, total int) {
		reports.Add(1)
		if total != len(samples) {
			t.Errorf("total = %d, want %d", total, len(samples))
		}
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if int(reports.Load()) != len(samples) {
		t.Fatalf("expected %d progress reports, got %d", len(samples), reports.Load())
	}
}

func TestCachePathLayout(t *testing.T) {
	cache := New("/var/cache/frames", 1, nil, nil)
	// 2026-06-15 14:07:30 UTC
	ts := int64(1781532450)
	got := cache.Path("front", ts)
	want := "/var/cache/frames/front/2026-06-15/14-07-30.webp"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
