package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bugaddr/audiolens/internal/client"
	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/jobs"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var title string
	var wait bool
	var pollSeconds int

	cmd := &cobra.Command{
		Use:   "submit <pdf> <audio>",
		Short: "Upload a PDF and audiobook pair for transcription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pdfPath, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve pdf path: %w", err)
			}
			audioPath, err := config.ExpandPath(args[1])
			if err != nil {
				return fmt.Errorf("resolve audio path: %w", err)
			}

			api, err := ctx.apiClient()
			if err != nil {
				return err
			}

			jobID, err := api.Upload(cmd.Context(), client.UploadRequest{
				PDFPath:   pdfPath,
				AudioPath: audioPath,
				Title:     title,
			})
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Job accepted: %s\n", jobID)
			if !wait {
				fmt.Fprintf(stdout, "Poll with `audiolens status %s`\n", jobID)
				return nil
			}
			return waitForJob(cmd, api, jobID, time.Duration(pollSeconds)*time.Second)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Display title (defaults to the audio filename)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job reaches a terminal state")
	cmd.Flags().IntVar(&pollSeconds, "poll-interval", 2, "Polling interval in seconds when waiting")
	return cmd
}

func waitForJob(cmd *cobra.Command, api *client.Client, jobID string, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	stdout := cmd.OutOrStdout()
	lastStatus := ""
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := api.Status(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		if status.Status != lastStatus {
			fmt.Fprintf(stdout, "%s\n", status.Status)
			lastStatus = status.Status
		}
		switch jobs.Status(status.Status) {
		case jobs.StatusCompleted:
			fmt.Fprintf(stdout, "Completed: %s\n", status.Title)
			return nil
		case jobs.StatusError:
			return fmt.Errorf("job failed: %s", status.ErrorMsg)
		}

		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}
	}
}
