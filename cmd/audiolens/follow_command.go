package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bugaddr/audiolens/internal/client"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/playback"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

func newFollowCommand(ctx *commandContext) *cobra.Command {
	var speed float64
	var from float64
	var lead float64

	cmd := &cobra.Command{
		Use:   "follow <job-id>",
		Short: "Replay a completed job's transcript against a wall clock",
		Long: "Fetches the transcript of a completed job and replays it in real time,\n" +
			"printing each segment as the playback clock enters and leaves it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := apiClient.Status(cmd.Context(), args[0])
			if client.IsNotFound(err) {
				return fmt.Errorf("no job with id %s", args[0])
			}
			if err != nil {
				return err
			}
			if jobs.Status(status.Status) != jobs.StatusCompleted {
				return fmt.Errorf("job is %s; only completed jobs can be followed", status.Status)
			}
			if status.Transcript == nil || len(status.Transcript.Segments) == 0 {
				return fmt.Errorf("job has no transcript segments")
			}
			return followTranscript(cmd, *status.Transcript, status.Title, speed, from, lead)
		},
	}

	cmd.Flags().Float64Var(&speed, "speed", 1.0, "Playback speed multiplier")
	cmd.Flags().Float64Var(&from, "from", 0, "Start position in seconds")
	cmd.Flags().Float64Var(&lead, "lead", playback.DefaultLeadBias, "Forward clock bias in seconds")
	return cmd
}

func followTranscript(cmd *cobra.Command, tr transcript.Transcript, title string, speed, from, lead float64) error {
	if speed <= 0 {
		return fmt.Errorf("speed must be positive")
	}
	stdout := cmd.OutOrStdout()
	if title != "" {
		fmt.Fprintf(stdout, "Following %q at %.2fx\n", title, speed)
	}

	engine := playback.New(tr,
		playback.WithLeadBias(lead),
		playback.OnEnter(func(index int, segment transcript.Segment) {
			fmt.Fprintf(stdout, "[%8.2f → %8.2f] %s\n", segment.Start, segment.End, segment.Text)
		}),
	)

	end := tr.Duration()
	if from >= end {
		return fmt.Errorf("start position %.2fs is past the transcript end (%.2fs)", from, end)
	}

	started := time.Now()
	clock := func() float64 {
		return from + time.Since(started).Seconds()*speed
	}

	// Stop once the clock has run past the final segment.
	remaining := time.Duration((end-from+lead)/speed*float64(time.Second)) + playback.DefaultInterval
	runCtx, cancel := context.WithTimeout(cmd.Context(), remaining)
	defer cancel()

	err := engine.Run(runCtx, clock, playback.DefaultInterval)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
