package main

import (
	"github.com/spf13/cobra"

	"wildcut/internal/jobs"
)

func newTimelapseCommand(ctx *commandContext) *cobra.Command {
	var windows windowFlags
	var (
		interval int
		fps      int
		scale    string
		dryRun   bool
		upload   bool
		wait     bool
	)

	cmd := &cobra.Command{
		Use:   "timelapse CAMERA",
		Short: "Queue a sampled-frame timelapse for a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobArgs := &jobs.TimelapseArgs{
				StartDate:       windows.startDate,
				EndDate:         windows.endDate,
				Mode:            windows.mode,
				StartTime:       windows.startTime,
				EndTime:         windows.endTime,
				DawnOffsetMin:   windows.dawnOffsetMin,
				DuskOffsetMin:   windows.duskOffsetMin,
				IntervalSeconds: interval,
				FPS:             fps,
				Scale:           scale,
				DryRun:          dryRun,
				Upload:          upload,
			}
			return submitJob(cmd, ctx, "timelapse", args[0], jobArgs, wait)
		},
	}

	windows.register(cmd)
	cmd.Flags().IntVar(&interval, "interval", 0, "Seconds of wall time per sampled frame (default 30)")
	cmd.Flags().IntVar(&fps, "fps", 0, "Output frame rate")
	cmd.Flags().StringVar(&scale, "scale", "", "Output scale filter, e.g. 1920:-2")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan the timelapse without extracting or encoding")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the finished timelapse")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow the job until it finishes")

	return cmd
}
