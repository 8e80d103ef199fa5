// Package framecache samples one frame per time bucket from recording chunks
// and caches the extractions so overlapping runs share work.
package framecache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"wildcut/internal/fileutil"
	"wildcut/internal/logging"
	"wildcut/internal/services"
	"wildcut/internal/source"
)

// Extractor pulls the first frame of a source file into an image at dst.
type Extractor interface {
	ExtractFrame(ctx context.Context, src, dst string) error
}

// FFmpegExtractor shells out to ffmpeg for frame extraction.
type FFmpegExtractor struct {
	Binary string
}

func (e FFmpegExtractor) ExtractFrame(ctx context.Context, src, dst string) error {
	binary := e.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-frames:v", "1",
		"-quality", "85",
		dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return services.Wrap(services.ErrExternalTool, "framecache", "extract frame",
			strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Sample is one planned extraction: a chunk chosen to represent its bucket.
type Sample struct {
	Bucket int64
	TS     int64
	Path   string
}

// Plan assigns chunks to interval buckets aligned to windowStart and keeps
// the first chunk per bucket. Alignment to the window start means a run at
// interval K samples a superset of the buckets any multiple of K samples,
// so cache entries are shared across differently grained runs.
func Plan(chunks []source.Chunk, windowStart, interval int64) []Sample {
	if interval <= 0 {
		interval = 1
	}
	byBucket := map[int64]Sample{}
	for _, chunk := range chunks {
		bucket := (chunk.TS - windowStart) / interval
		if existing, ok := byBucket[bucket]; ok && existing.TS <= chunk.TS {
			continue
		}
		byBucket[bucket] = Sample{Bucket: bucket, TS: chunk.TS, Path: chunk.Path}
	}
	samples := make([]Sample, 0, len(byBucket))
	for _, sample := range byBucket {
		samples = append(samples, sample)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Bucket < samples[j].Bucket })
	return samples
}

// Stats reports one sampling run.
type Stats struct {
	Planned    int `json:"planned"`
	Hits       int `json:"hits"`
	Extracted  int `json:"extracted"`
	Failed     int `json:"failed"`
	FramesKept int `json:"frames_kept"`
}

// Cache stores sampled frames under dir/camera/YYYY-MM-DD/HH-MM-SS.webp
// (UTC) and fans extraction out over a bounded worker pool.
type Cache struct {
	dir       string
	workers   int
	extractor Extractor
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Cache. workers bounds concurrent extractions.
func New(dir string, workers int, extractor Extractor, logger *slog.Logger) *Cache {
	if workers <= 0 {
		workers = 16
	}
	if extractor == nil {
		extractor = FFmpegExtractor{}
	}
	return &Cache{
		dir:       dir,
		workers:   workers,
		extractor: extractor,
		logger:    logging.WithComponent(logger, "framecache"),
		locks:     map[string]*sync.Mutex{},
	}
}

// Key returns the cache-relative key for a camera and chunk timestamp.
func (c *Cache) Key(camera string, ts int64) string {
	at := time.Unix(ts, 0).UTC()
	return filepath.Join(camera, at.Format("2006-01-02"), at.Format("15-04-05")+".webp")
}

// Path returns the absolute cache path for a camera and chunk timestamp.
func (c *Cache) Path(camera string, ts int64) string {
	return filepath.Join(c.dir, c.Key(camera, ts))
}

// keyLock returns the mutex guarding one cache key. Unrelated keys proceed
// in parallel; the same key is strictly serialized.
func (c *Cache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}

// Materialize produces a sequential frame directory (frame_00000000.webp,
// frame_00000001.webp, ...) for the planned samples, reusing cached frames
// where present. Failed samples are dropped; the sequence is renumbered so
// the image demuxer sees a gap-free run.
func (c *Cache) Materialize(ctx context.Context, camera string, samples []Sample, seqDir string, onProgress func(done, total int)) (Stats, error) {
	stats := Stats{Planned: len(samples)}
	if len(samples) == 0 {
		return stats, nil
	}
	if err := os.MkdirAll(seqDir, 0o755); err != nil {
		return stats, fmt.Errorf("create sequence directory: %w", err)
	}

	type outcome struct {
		ok     bool
		cached bool
	}
	outcomes := make([]outcome, len(samples))

	var done int
	var progressMu sync.Mutex
	report := func() {
		if onProgress == nil {
			return
		}
		progressMu.Lock()
		done++
		current := done
		progressMu.Unlock()
		onProgress(current, len(samples))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.workers)
	for i, sample := range samples {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			tmpPath := filepath.Join(seqDir, fmt.Sprintf("raw_%08d.webp", i))
			cached, err := c.fetch(groupCtx, camera, sample, tmpPath)
			if err != nil {
				c.logger.Debug("sample failed",
					logging.Int64("ts", sample.TS),
					logging.Error(err))
				report()
				return nil
			}
			outcomes[i] = outcome{ok: true, cached: cached}
			report()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return stats, err
	}

	// Renumber survivors into the gap-free sequence the demuxer needs.
	next := 0
	for i, out := range outcomes {
		raw := filepath.Join(seqDir, fmt.Sprintf("raw_%08d.webp", i))
		if !out.ok {
			stats.Failed++
			continue
		}
		if out.cached {
			stats.Hits++
		} else {
			stats.Extracted++
		}
		final := filepath.Join(seqDir, fmt.Sprintf("frame_%08d.webp", next))
		if err := os.Rename(raw, final); err != nil {
			return stats, fmt.Errorf("renumber frame: %w", err)
		}
		next++
	}
	stats.FramesKept = next

	c.logger.Info("frame sequence materialized",
		logging.Int("planned", stats.Planned),
		logging.Int("hits", stats.Hits),
		logging.Int("extracted", stats.Extracted),
		logging.Int("failed", stats.Failed))
	return stats, nil
}

// fetch satisfies one sample from cache or by extraction, writing the frame
// to dst. Returns whether the cache served it.
func (c *Cache) fetch(ctx context.Context, camera string, sample Sample, dst string) (bool, error) {
	key := c.Key(camera, sample.TS)
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	cachePath := filepath.Join(c.dir, key)
	if _, err := os.Stat(cachePath); err == nil {
		if err := fileutil.CopyFile(cachePath, dst); err == nil {
			return true, nil
		}
	}

	if err := c.extractor.ExtractFrame(ctx, sample.Path, dst); err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err == nil {
		// Cache write failure is non-fatal; the frame already exists at dst.
		_ = fileutil.CopyFile(dst, cachePath)
	}
	return false, nil
}
