package main

import (
	"github.com/spf13/cobra"

	"wildcut/internal/jobs"
)

// windowFlags are the date and window selectors shared by render commands.
type windowFlags struct {
	startDate     string
	endDate       string
	mode          string
	startTime     string
	endTime       string
	dawnOffsetMin int
	duskOffsetMin int
}

func (f *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.startDate, "date", "", "Start date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "Inclusive end date for multi-day ranges")
	cmd.Flags().StringVar(&f.mode, "window", "", "Window mode: full-day, dawn-to-dusk, dusk-to-dawn, custom")
	cmd.Flags().StringVar(&f.startTime, "start-time", "", "Custom window start (HH:MM, local)")
	cmd.Flags().StringVar(&f.endTime, "end-time", "", "Custom window end (HH:MM, local)")
	cmd.Flags().IntVar(&f.dawnOffsetMin, "dawn-offset", 0, "Minutes to shift the dawn boundary")
	cmd.Flags().IntVar(&f.duskOffsetMin, "dusk-offset", 0, "Minutes to shift the dusk boundary")
}

func newMontageCommand(ctx *commandContext) *cobra.Command {
	var windows windowFlags
	var (
		kind          string
		includeLabels []string
		excludeLabels []string
		minScore      float64
		allMotion     bool
		minMotion     int
		timelapse     float64
		timelapseAud  bool
		encode        bool
		copyAudio     bool
		sourceMode    string
		probeVOD      bool
		dryRun        bool
		upload        bool
		wait          bool
	)

	cmd := &cobra.Command{
		Use:   "montage CAMERA",
		Short: "Queue an event highlight montage for a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobArgs := &jobs.MontageArgs{
				Kind:           kind,
				StartDate:      windows.startDate,
				EndDate:        windows.endDate,
				Mode:           windows.mode,
				StartTime:      windows.startTime,
				EndTime:        windows.endTime,
				DawnOffsetMin:  windows.dawnOffsetMin,
				DuskOffsetMin:  windows.duskOffsetMin,
				IncludeLabels:  includeLabels,
				ExcludeLabels:  excludeLabels,
				MinScore:       minScore,
				AllMotion:      allMotion,
				MinMotion:      minMotion,
				Timelapse:      timelapse,
				TimelapseAudio: timelapseAud,
				Encode:         encode,
				CopyAudio:      copyAudio,
				SourceMode:     sourceMode,
				ProbeVOD:       probeVOD,
				DryRun:         dryRun,
				Upload:         upload,
			}
			return submitJob(cmd, ctx, "montage", args[0], jobArgs, wait)
		},
	}

	windows.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "", "Output flavour used in the filename (default animals)")
	cmd.Flags().StringSliceVar(&includeLabels, "label", nil, "Detection labels to include (repeatable)")
	cmd.Flags().StringSliceVar(&excludeLabels, "exclude-label", nil, "Detection labels to exclude (repeatable)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum detection score (0-1)")
	cmd.Flags().BoolVar(&allMotion, "all-motion", false, "Use recording motion counters instead of detection events")
	cmd.Flags().IntVar(&minMotion, "min-motion", 0, "Minimum motion counter for --all-motion chunks")
	cmd.Flags().Float64Var(&timelapse, "timelapse", 0, "Speed-up factor; implies re-encode")
	cmd.Flags().BoolVar(&timelapseAud, "timelapse-audio", false, "Keep pitch-corrected audio in timelapse output")
	cmd.Flags().BoolVar(&encode, "encode", false, "Re-encode instead of stream-copying")
	cmd.Flags().BoolVar(&copyAudio, "copy-audio", false, "Copy the audio stream instead of re-encoding it")
	cmd.Flags().StringVar(&sourceMode, "source", "", "Source resolution mode: auto, disk, vod")
	cmd.Flags().BoolVar(&probeVOD, "probe-vod", false, "Probe VOD URLs before rendering")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan the render without running the transcoder")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the finished montage")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow the job until it finishes")

	return cmd
}
