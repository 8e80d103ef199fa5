package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wildcut/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatalf("expected missing config to report exists=false (path %s)", path)
	}
	if cfg.Frigate.BaseURL != "http://127.0.0.1:5000" {
		t.Fatalf("unexpected default base url %q", cfg.Frigate.BaseURL)
	}
	if cfg.Segments.MergeGap != 15 || cfg.Segments.MinSegmentLen != 2 {
		t.Fatalf("unexpected segment defaults: %+v", cfg.Segments)
	}
	if cfg.Workflow.SampleWorkers != 16 {
		t.Fatalf("unexpected sample workers %d", cfg.Workflow.SampleWorkers)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
recordings_dir = "` + dir + `/recordings"
recordings_fallbacks = ["` + dir + `/nas", "  "]
output_dir = "` + dir + `/out"
frame_cache_dir = "` + dir + `/cache"

[frigate]
base_url = "http://nvr.local:5000/"

[labels]
include = ["Deer", "deer", " fox "]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	if strings.HasSuffix(cfg.Frigate.BaseURL, "/") {
		t.Fatalf("base url not trimmed: %q", cfg.Frigate.BaseURL)
	}
	if got := cfg.Labels.Include; len(got) != 2 || got[0] != "deer" || got[1] != "fox" {
		t.Fatalf("labels not deduplicated: %v", got)
	}
	roots := cfg.RecordingRoots()
	if len(roots) != 2 {
		t.Fatalf("expected 2 recording roots, got %v", roots)
	}
	if roots[0] != filepath.Join(dir, "recordings") {
		t.Fatalf("primary root not first: %v", roots)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero merge gap", func(c *config.Config) { c.Segments.MergeGap = 0 }},
		{"negative padding", func(c *config.Config) { c.Segments.PrePad = -1 }},
		{"score above one", func(c *config.Config) { c.Segments.MinScore = 1.5 }},
		{"latitude out of range", func(c *config.Config) { c.Location.Latitude = 91 }},
		{"bad timezone", func(c *config.Config) { c.Location.Timezone = "Mars/Olympus" }},
		{"zero workers", func(c *config.Config) { c.Workflow.SampleWorkers = 0 }},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "yaml" }},
		{"template missing camera", func(c *config.Config) {
			c.Frigate.VODURLTemplate = "{base}/vod/start/{start}/end/{end}/master.m3u8"
		}},
		{"upload enabled without token", func(c *config.Config) {
			c.Upload.Enabled = true
			c.Upload.TokenFile = ""
		}},
		{"bad privacy", func(c *config.Config) {
			c.Upload.Enabled = true
			c.Upload.TokenFile = "/tmp/token.json"
			c.Upload.DefaultPrivacy = "secret"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnsureDirectoriesSkipsRecordings(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RecordingsDir = filepath.Join(dir, "recordings")
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.Paths.FrameCacheDir = filepath.Join(dir, "cache")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, want := range []string{cfg.Paths.OutputDir, cfg.Paths.FrameCacheDir, cfg.Paths.LogDir} {
		if _, err := os.Stat(want); err != nil {
			t.Fatalf("directory %s not created: %v", want, err)
		}
	}
	if _, err := os.Stat(cfg.Paths.RecordingsDir); !os.IsNotExist(err) {
		t.Fatal("recordings dir should not be created")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample config not found after write")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
}
