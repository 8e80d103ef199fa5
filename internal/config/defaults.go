package config

const (
	defaultRecordingsDir  = "/mnt/media/frigate/recordings"
	defaultOutputDir      = "~/montages"
	defaultLogDir         = "~/.local/share/wildcut/logs"
	defaultFrameCacheDir  = "~/.cache/wildcut/frames"
	defaultAPIBind        = "127.0.0.1:7823"
	defaultBaseURL        = "http://127.0.0.1:5000"
	defaultVODURLTemplate = "{base}/vod/{camera}/start/{start}/end/{end}/master.m3u8"
	defaultEventLimit     = 5000
	defaultRequestTimeout = 60
	defaultMaxRetries     = 3
	defaultTimezone       = "America/New_York"
	defaultLatitude       = 38.2120
	defaultLongitude      = -85.2230
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultEncoder        = "hevc_nvenc"
	defaultPreset         = "p5"
	defaultFPS            = 20
	defaultCQ             = 23
	defaultCRF            = 18
	defaultMaxrate        = "6M"
	defaultBufsize        = "12M"
	defaultAudioBitrate   = "96k"
	defaultAudioChannels  = 1
	defaultMaxJobs        = 2
	defaultPollInterval   = 2
	defaultCancelGrace    = 10
	defaultSampleWorkers  = 16
	defaultChunkSizeMiB   = 8
	defaultPrivacy        = "unlisted"
	defaultCategoryID     = "15" // pets & animals
	defaultNtfyTimeout    = 10
)

func defaultIncludeLabels() []string {
	return []string{
		"bird",
		"cat", "dog", "horse", "sheep", "cow",
		"elephant", "bear", "zebra", "giraffe",
		"deer", "raccoon", "squirrel", "rabbit", "fox", "coyote",
		"skunk", "opossum", "possum",
		"chipmunk", "groundhog", "bobcat", "mountain_lion", "cougar",
		"turkey",
	}
}

func defaultExcludeLabels() []string {
	return []string{
		"person", "car", "truck", "bus", "motorcycle", "bicycle",
		"package", "train", "boat", "airplane",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordingsDir: defaultRecordingsDir,
			OutputDir:     defaultOutputDir,
			FrameCacheDir: defaultFrameCacheDir,
			LogDir:        defaultLogDir,
			APIBind:       defaultAPIBind,
		},
		Frigate: Frigate{
			BaseURL:        defaultBaseURL,
			VODURLTemplate: defaultVODURLTemplate,
			EventLimit:     defaultEventLimit,
			RequestTimeout: defaultRequestTimeout,
			MaxRetries:     defaultMaxRetries,
		},
		Location: Location{
			Timezone:  defaultTimezone,
			Latitude:  defaultLatitude,
			Longitude: defaultLongitude,
		},
		Labels: Labels{
			Include: defaultIncludeLabels(),
			Exclude: defaultExcludeLabels(),
		},
		Segments: Segments{
			PrePad:        5,
			PostPad:       5,
			MergeGap:      15,
			MinSegmentLen: 2,
			MinScore:      0,
		},
		Render: Render{
			Encoder:       defaultEncoder,
			Preset:        defaultPreset,
			FPS:           defaultFPS,
			CQ:            defaultCQ,
			CRF:           defaultCRF,
			Maxrate:       defaultMaxrate,
			Bufsize:       defaultBufsize,
			AudioBitrate:  defaultAudioBitrate,
			AudioChannels: defaultAudioChannels,
		},
		Workflow: Workflow{
			MaxConcurrentJobs: defaultMaxJobs,
			QueuePollInterval: defaultPollInterval,
			CancelGraceSecs:   defaultCancelGrace,
			SampleWorkers:     defaultSampleWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Upload: Upload{
			ChunkSizeMiB:   defaultChunkSizeMiB,
			DefaultPrivacy: defaultPrivacy,
			CategoryID:     defaultCategoryID,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
	}
}
