package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Claim moves a queued job into transcribing. Exactly one caller wins when
// dispatch races; the losers see false.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, progress_stage = NULL, progress_percent = 0,
             progress_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusTranscribing,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkCompleted finishes a job from queued (cache fast path) or transcribing.
// The transcript must already be durably cached; a status read after this
// returns a servable record.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = NULL, progress_stage = 'Completed',
             progress_percent = 100, progress_message = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusCompleted,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusQueued,
		StatusTranscribing,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark completed: job %s is not queued or transcribing", id)
	}
	return nil
}

// MarkError moves a non-terminal job to error with a human-readable reason.
// Error is terminal and never overwrites completed; marking an already
// terminal job is a no-op.
func (s *Store) MarkError(ctx context.Context, id, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown failure"
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, progress_stage = 'Failed',
             progress_percent = 0, progress_message = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		StatusError,
		reason,
		reason,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusError,
	); err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return nil
}

// MarkRepaired clears a job's pending-repair flag after the stored PDF has
// been rewritten, so a crash-resumed run does not repair twice.
func (s *Store) MarkRepaired(ctx context.Context, id string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET repair_pdf = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("mark repaired: %w", err)
	}
	return nil
}

// ResetInterrupted returns jobs a crashed daemon left in transcribing back to
// the queue so the dispatcher picks them up again.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, progress_stage = NULL, progress_percent = 0,
             progress_message = NULL, updated_at = ?
         WHERE status = ?`,
		StatusQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusTranscribing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateProgress records pipeline progress without touching status.
func (s *Store) UpdateProgress(ctx context.Context, id, stage, message string, percent float64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(stage),
		percent,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}
