package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	RecordingsDir       string   `toml:"recordings_dir"`
	RecordingsFallbacks []string `toml:"recordings_fallbacks"`
	OutputDir           string   `toml:"output_dir"`
	FrameCacheDir       string   `toml:"frame_cache_dir"`
	LogDir              string   `toml:"log_dir"`
	APIBind             string   `toml:"api_bind"`
}

// Frigate contains configuration for the NVR events/VOD endpoints.
type Frigate struct {
	BaseURL        string            `toml:"base_url"`
	Headers        map[string]string `toml:"headers"`
	VODURLTemplate string            `toml:"vod_url_template"`
	EventLimit     int               `toml:"event_limit"`
	RequestTimeout int               `toml:"request_timeout"`
	MaxRetries     int               `toml:"max_retries"`
}

// Location contains the timezone and coordinate used for twilight windows.
type Location struct {
	Timezone  string  `toml:"timezone"`
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
}

// Labels contains the default detection label filter sets.
type Labels struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// Segments contains default padding and merge parameters.
type Segments struct {
	PrePad        int     `toml:"pre_pad"`
	PostPad       int     `toml:"post_pad"`
	MergeGap      int     `toml:"merge_gap"`
	MinSegmentLen int     `toml:"min_segment_len"`
	MinScore      float64 `toml:"min_score"`
}

// Render contains default encoder parameters.
type Render struct {
	Encoder       string `toml:"encoder"`
	Preset        string `toml:"preset"`
	FPS           int    `toml:"fps"`
	CQ            int    `toml:"cq"`
	CRF           int    `toml:"crf"`
	Maxrate       string `toml:"maxrate"`
	Bufsize       string `toml:"bufsize"`
	AudioBitrate  string `toml:"audio_bitrate"`
	AudioChannels int    `toml:"audio_channels"`
}

// Workflow contains orchestrator pool sizing and timing.
type Workflow struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	QueuePollInterval int `toml:"queue_poll_interval"`
	CancelGraceSecs   int `toml:"cancel_grace_seconds"`
	SampleWorkers     int `toml:"sample_workers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Upload contains configuration for the video upload collaborator.
type Upload struct {
	Enabled        bool   `toml:"enabled"`
	TokenFile      string `toml:"token_file"`
	ChunkSizeMiB   int    `toml:"chunk_size_mib"`
	DefaultPrivacy string `toml:"default_privacy"`
	CategoryID     string `toml:"category_id"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for Wildcut.
//
// Configuration sections by subsystem:
//   - Paths: recording roots, output/cache/log directories, API bind address
//   - Frigate: events API endpoint, VOD URL template, retry limits
//   - Location: timezone and coordinate for twilight window resolution
//   - Labels: default include/exclude detection label sets
//   - Segments: default padding, merge gap, and score thresholds
//   - Render: default encoder and quality parameters
//   - Workflow: job pool size and polling intervals
//   - Logging: log format and level
//   - Upload: resumable video upload settings
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Frigate       Frigate       `toml:"frigate"`
	Location      Location      `toml:"location"`
	Labels        Labels        `toml:"labels"`
	Segments      Segments      `toml:"segments"`
	Render        Render        `toml:"render"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Upload        Upload        `toml:"upload"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/wildcut/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("wildcut.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into.
// Recording roots are deliberately left alone; they are read-only inputs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.FrameCacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RecordingRoots returns the ordered disk resolution roots (primary first).
func (c *Config) RecordingRoots() []string {
	roots := make([]string, 0, 1+len(c.Paths.RecordingsFallbacks))
	if strings.TrimSpace(c.Paths.RecordingsDir) != "" {
		roots = append(roots, c.Paths.RecordingsDir)
	}
	for _, root := range c.Paths.RecordingsFallbacks {
		if strings.TrimSpace(root) != "" {
			roots = append(roots, root)
		}
	}
	return roots
}

// FFmpegBinary returns the transcoder executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the media prober executable name.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
