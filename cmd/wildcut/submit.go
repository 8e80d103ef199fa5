package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wildcut/internal/api"
	"wildcut/internal/jobs"
)

// submitJob creates a job through the daemon API and optionally follows its
// progress stream until it reaches a terminal state.
func submitJob(cmd *cobra.Command, ctx *commandContext, jobType string, camera string, args any, wait bool) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}

	client := ctx.client()
	job, err := client.CreateJob(cmd.Context(), api.CreateJobRequest{
		Type:      jobType,
		Camera:    camera,
		Arguments: payload,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Queued %s job %s for camera %s\n", job.Type, job.ID, job.Camera)
	if !wait {
		fmt.Fprintf(out, "Follow it with: wildcut jobs logs %s --follow\n", job.ID)
		return nil
	}

	return followJob(cmd, client, job.ID)
}

// followJob streams progress events, printing phase changes and a final
// status line. Ctrl-C detaches without cancelling the job.
func followJob(cmd *cobra.Command, client *api.Client, id string) error {
	out := cmd.OutOrStdout()
	streamCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lastPhase string
	var final jobs.Event
	err := client.StreamEvents(streamCtx, id, func(event jobs.Event) {
		final = event
		if event.Progress.Phase != lastPhase && event.Progress.Phase != "" {
			lastPhase = event.Progress.Phase
			fmt.Fprintf(out, "%-10s %5.1f%%  %s\n", event.Progress.Phase, event.Progress.Percent, event.Progress.Message)
		}
	})
	if streamCtx.Err() != nil {
		fmt.Fprintf(out, "Detached; job %s keeps running in the daemon\n", id)
		return nil
	}
	if err != nil {
		return err
	}

	switch final.Status {
	case jobs.StatusCompleted:
		job, jobErr := client.GetJob(cmd.Context(), id)
		if jobErr == nil && job.OutputFile != "" {
			fmt.Fprintf(out, "Completed: %s\n", job.OutputFile)
		} else {
			fmt.Fprintln(out, "Completed")
		}
		return nil
	case jobs.StatusCancelled:
		return fmt.Errorf("job %s was cancelled", id)
	case jobs.StatusFailed:
		job, jobErr := client.GetJob(cmd.Context(), id)
		if jobErr == nil && job.Error != "" {
			return fmt.Errorf("job %s failed: %s", id, job.Error)
		}
		return fmt.Errorf("job %s failed", id)
	default:
		return nil
	}
}
