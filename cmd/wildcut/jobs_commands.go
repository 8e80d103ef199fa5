package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wildcut/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage render jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))
	jobsCmd.AddCommand(newJobsLogsCommand(ctx))
	jobsCmd.AddCommand(newJobsWatchCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var status, camera, jobType string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := ctx.client().ListJobs(cmd.Context(), status, camera, jobType, limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, job := range list {
				rows = append(rows, []string{
					shortID(job.ID),
					string(job.Type),
					string(job.Status),
					job.Camera,
					progressCell(job),
					humanize.Time(job.CreatedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Type", "Status", "Camera", "Progress", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&camera, "camera", "", "Filter by camera")
	cmd.Flags().StringVar(&jobType, "type", "", "Filter by job type")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(job)
			}

			fmt.Fprintf(out, "ID:        %s\n", job.ID)
			fmt.Fprintf(out, "Type:      %s\n", job.Type)
			fmt.Fprintf(out, "Status:    %s\n", job.Status)
			fmt.Fprintf(out, "Camera:    %s\n", job.Camera)
			fmt.Fprintf(out, "Created:   %s\n", job.CreatedAt.Local().Format(time.RFC1123))
			if job.StartedAt != nil {
				fmt.Fprintf(out, "Started:   %s\n", job.StartedAt.Local().Format(time.RFC1123))
			}
			if job.CompletedAt != nil {
				fmt.Fprintf(out, "Completed: %s\n", job.CompletedAt.Local().Format(time.RFC1123))
			}
			if job.Progress.Phase != "" {
				fmt.Fprintf(out, "Progress:  %s %.1f%%\n", job.Progress.Phase, job.Progress.Percent)
			}
			if job.OutputFile != "" {
				fmt.Fprintf(out, "Output:    %s\n", job.OutputFile)
			}
			if job.Error != "" {
				fmt.Fprintf(out, "Error:     %s\n", job.Error)
			}
			if job.RetryOf != "" {
				fmt.Fprintf(out, "Retry of:  %s\n", job.RetryOf)
			}
			if len(job.Arguments) > 0 && string(job.Arguments) != "{}" {
				fmt.Fprintf(out, "Arguments: %s\n", job.Arguments)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the job record as JSON")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s\n", shortID(job.ID), job.Status)
			return nil
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry JOB_ID",
		Short: "Clone a finished job into a new pending one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clone, err := ctx.client().RetryJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued retry %s of job %s\n", clone.ID, shortID(args[0]))
			return nil
		},
	}
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm JOB_ID",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a job record and its log",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", shortID(args[0]))
			return nil
		},
	}
}

func newJobsLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs JOB_ID",
		Short: "Tail a job's log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			out := cmd.OutOrStdout()

			result, err := client.JobLog(cmd.Context(), args[0], -1, lines, false)
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			offset := result.Offset
			for {
				result, err = client.JobLog(cmd.Context(), args[0], offset, lines, true)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
				}
				offset = result.Offset
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "Lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new lines")
	return cmd
}

func newJobsWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch JOB_ID",
		Short: "Follow a job's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return followJob(cmd, ctx.client(), args[0])
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func progressCell(job *api.JobView) string {
	if job.Progress.Phase == "" {
		return ""
	}
	if job.Progress.Percent > 0 {
		return fmt.Sprintf("%s %.0f%%", job.Progress.Phase, job.Progress.Percent)
	}
	return job.Progress.Phase
}
