package config

import (
	"fmt"
	"strings"
	"time"
)

var validPrivacies = map[string]struct{}{
	"public":   {},
	"unlisted": {},
	"private":  {},
}

// Validate checks the configuration for invalid or contradictory values.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFrigate(); err != nil {
		return err
	}
	if err := c.validateLocation(); err != nil {
		return err
	}
	if err := c.validateSegments(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return fmt.Errorf("paths.output_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.FrameCacheDir) == "" {
		return fmt.Errorf("paths.frame_cache_dir must not be empty")
	}
	return nil
}

func (c *Config) validateFrigate() error {
	if strings.TrimSpace(c.Frigate.BaseURL) == "" {
		return fmt.Errorf("frigate.base_url must not be empty")
	}
	if c.Frigate.EventLimit <= 0 {
		return fmt.Errorf("frigate.event_limit must be greater than zero")
	}
	if c.Frigate.RequestTimeout <= 0 {
		return fmt.Errorf("frigate.request_timeout must be greater than zero")
	}
	if c.Frigate.MaxRetries < 0 {
		return fmt.Errorf("frigate.max_retries must not be negative")
	}
	if template := c.Frigate.VODURLTemplate; template != "" {
		for _, placeholder := range []string{"{camera}", "{start}", "{end}"} {
			if !strings.Contains(template, placeholder) {
				return fmt.Errorf("frigate.vod_url_template missing %s placeholder", placeholder)
			}
		}
	}
	return nil
}

func (c *Config) validateLocation() error {
	if c.Location.Timezone == "" {
		return fmt.Errorf("location.timezone must not be empty")
	}
	if _, err := time.LoadLocation(c.Location.Timezone); err != nil {
		return fmt.Errorf("location.timezone: %w", err)
	}
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return fmt.Errorf("location.latitude must be between -90 and 90")
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return fmt.Errorf("location.longitude must be between -180 and 180")
	}
	return nil
}

func (c *Config) validateSegments() error {
	positives := map[string]int{
		"segments.merge_gap":       c.Segments.MergeGap,
		"segments.min_segment_len": c.Segments.MinSegmentLen,
	}
	if err := ensurePositive(positives); err != nil {
		return err
	}
	if c.Segments.PrePad < 0 || c.Segments.PostPad < 0 {
		return fmt.Errorf("segments padding must not be negative")
	}
	if c.Segments.MinScore < 0 || c.Segments.MinScore > 1 {
		return fmt.Errorf("segments.min_score must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Encoder == "" {
		return fmt.Errorf("render.encoder must not be empty")
	}
	positives := map[string]int{
		"render.fps":            c.Render.FPS,
		"render.audio_channels": c.Render.AudioChannels,
	}
	if err := ensurePositive(positives); err != nil {
		return err
	}
	if c.Render.CQ < 0 || c.Render.CQ > 51 {
		return fmt.Errorf("render.cq must be between 0 and 51")
	}
	if c.Render.CRF < 0 || c.Render.CRF > 51 {
		return fmt.Errorf("render.crf must be between 0 and 51")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	positives := map[string]int{
		"workflow.max_concurrent_jobs":  c.Workflow.MaxConcurrentJobs,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.cancel_grace_seconds": c.Workflow.CancelGraceSecs,
		"workflow.sample_workers":       c.Workflow.SampleWorkers,
	}
	return ensurePositive(positives)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if !c.Upload.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Upload.TokenFile) == "" {
		return fmt.Errorf("upload.token_file must be set when upload is enabled")
	}
	if c.Upload.ChunkSizeMiB <= 0 {
		return fmt.Errorf("upload.chunk_size_mib must be greater than zero")
	}
	if _, ok := validPrivacies[c.Upload.DefaultPrivacy]; !ok {
		return fmt.Errorf("upload.default_privacy must be public, unlisted, or private")
	}
	return nil
}

func ensurePositive(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be greater than zero", name)
		}
	}
	return nil
}
