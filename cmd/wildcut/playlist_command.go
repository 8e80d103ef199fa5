package main

import (
	"github.com/spf13/cobra"

	"wildcut/internal/jobs"
)

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	var (
		startDate       string
		endDate         string
		limit           int
		defaultDuration int
		wait            bool
	)

	cmd := &cobra.Command{
		Use:   "playlist CAMERA",
		Short: "Queue an M3U playlist of motion review clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobArgs := &jobs.MotionPlaylistArgs{
				StartDate:           startDate,
				EndDate:             endDate,
				Limit:               limit,
				DefaultDurationSecs: defaultDuration,
			}
			return submitJob(cmd, ctx, "motion_playlist", args[0], jobArgs, wait)
		},
	}

	cmd.Flags().StringVar(&startDate, "date", "", "Start date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "Inclusive end date for multi-day ranges")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum review items to include")
	cmd.Flags().IntVar(&defaultDuration, "default-duration", 0, "Clip seconds for still-open review items (default 30)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow the job until it finishes")

	return cmd
}
