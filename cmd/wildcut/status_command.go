package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wildcut/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and dependency health",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:     running (v%s)\n", status.Version)
			fmt.Fprintf(out, "Job store:  %s\n", status.JobDBPath)
			fmt.Fprintf(out, "Active:     %d\n", status.ActiveJobs)

			for _, st := range []jobs.Status{
				jobs.StatusPending, jobs.StatusRunning,
				jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled,
			} {
				if count := status.JobCounts[st]; count > 0 {
					fmt.Fprintf(out, "  %-10s %d\n", st, count)
				}
			}

			fmt.Fprintln(out, "Dependencies:")
			for _, dep := range status.Dependencies {
				mark := "ok"
				if !dep.Available {
					mark = "MISSING"
					if dep.Detail != "" {
						mark += " (" + dep.Detail + ")"
					}
				}
				fmt.Fprintf(out, "  %-10s %s\n", dep.Name, mark)
			}
			return nil
		},
	}
}
