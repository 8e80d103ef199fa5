package config

import "strings"

func (c *Config) normalize() error {
	pathFields := []*string{
		&c.Paths.RecordingsDir,
		&c.Paths.OutputDir,
		&c.Paths.FrameCacheDir,
		&c.Paths.LogDir,
		&c.Upload.TokenFile,
	}
	for _, field := range pathFields {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		*field = expanded
	}

	fallbacks := make([]string, 0, len(c.Paths.RecordingsFallbacks))
	for _, root := range c.Paths.RecordingsFallbacks {
		trimmed := strings.TrimSpace(root)
		if trimmed == "" {
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		fallbacks = append(fallbacks, expanded)
	}
	c.Paths.RecordingsFallbacks = fallbacks

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Frigate.BaseURL = strings.TrimRight(strings.TrimSpace(c.Frigate.BaseURL), "/")
	c.Frigate.VODURLTemplate = strings.TrimSpace(c.Frigate.VODURLTemplate)
	c.Location.Timezone = strings.TrimSpace(c.Location.Timezone)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Render.Encoder = strings.TrimSpace(c.Render.Encoder)
	c.Upload.DefaultPrivacy = strings.ToLower(strings.TrimSpace(c.Upload.DefaultPrivacy))
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	c.Labels.Include = normalizeLabels(c.Labels.Include)
	c.Labels.Exclude = normalizeLabels(c.Labels.Exclude)

	return nil
}

func normalizeLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		trimmed := strings.ToLower(strings.TrimSpace(label))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
