// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"wildcut/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RecordingsDir = filepath.Join(base, "recordings")
	cfgVal.Paths.RecordingsFallbacks = nil
	cfgVal.Paths.OutputDir = filepath.Join(base, "out")
	cfgVal.Paths.FrameCacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Location.Timezone = "UTC"
	cfgVal.Frigate.BaseURL = "http://127.0.0.1:5000"
	cfgVal.Frigate.MaxRetries = 0

	for _, dir := range []string{
		cfgVal.Paths.RecordingsDir,
		cfgVal.Paths.OutputDir,
		cfgVal.Paths.FrameCacheDir,
		cfgVal.Paths.LogDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithEventsAPI points the config at a test NVR endpoint.
func WithEventsAPI(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Frigate.BaseURL = baseURL
	}
}

// WithTimezone overrides the location timezone on the test config.
func WithTimezone(tz string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Location.Timezone = tz
	}
}

// WithLabels overrides the default include label set on the test config.
func WithLabels(include ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Labels.Include = include
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
