package orchestrator

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/services"
)

// Start launches the background dispatcher. Jobs a previous process left in
// transcribing are requeued first so restarts resume where they stopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.wg.Add(1)
	o.mu.Unlock()

	if count, err := o.store.ResetInterrupted(runCtx); err != nil {
		o.logger.Warn("requeueing interrupted jobs failed", logging.Error(err))
	} else if count > 0 {
		o.logger.Info("requeued interrupted jobs", logging.Int64("count", count))
	}

	go o.dispatchLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight jobs to
// unwind. Interrupted jobs stay in transcribing until the next Start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	defer o.wg.Done()
	sem := make(chan struct{}, o.workerCount)

	for {
		o.dispatchQueued(ctx, sem)
		select {
		case <-ctx.Done():
			return
		case <-o.kick:
		case <-time.After(o.pollInterval):
		}
	}
}

// dispatchQueued hands every queued job not already held by a worker to the
// pool, oldest first. It blocks while the pool is full so an upload burst
// drains at the configured concurrency.
func (o *Orchestrator) dispatchQueued(ctx context.Context, sem chan struct{}) {
	queued, err := o.store.List(ctx, jobs.StatusQueued)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		o.setLastError(err)
		o.logger.Error("failed to list queued jobs",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_fetch_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		select {
		case <-ctx.Done():
		case <-time.After(o.errorRetryInterval):
		}
		return
	}

	// List returns newest first; walk it backwards.
	for i := len(queued) - 1; i >= 0; i-- {
		job := queued[i]
		if !o.tryAcquire(job.ID) {
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			o.release(job.ID)
			return
		}
		o.wg.Add(1)
		go func(job *jobs.Job) {
			defer o.wg.Done()
			defer func() { <-sem }()
			defer o.release(job.ID)
			o.runJob(ctx, job)
		}(job)
	}
}

// runJob walks one job through repair, cache recheck, and transcription.
// Shutdown cancellation leaves the job wherever it is; ResetInterrupted
// requeues it on the next Start.
func (o *Orchestrator) runJob(ctx context.Context, job *jobs.Job) {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, o.logger)
	o.setLastJob(job)

	if job.RepairPDF && o.repairer != nil {
		if err := o.repairPDF(ctx, logger, job); err != nil {
			o.failJob(ctx, logger, job, err)
			return
		}
	}

	audioIdentity := cas.Identity(job.AudioIdentity)

	// The transcript may have landed after this job was queued, written by
	// an earlier job carrying the same audio. Completing here keeps the job
	// out of transcribing entirely.
	if _, ok, err := o.transcripts.Get(audioIdentity); err != nil {
		logger.Warn("transcript cache read failed", logging.Error(err))
	} else if ok {
		o.completeJob(ctx, logger, job)
		return
	}

	claimed, err := o.store.Claim(ctx, job.ID)
	if err != nil {
		o.failJob(ctx, logger, job, err)
		return
	}
	if !claimed {
		logger.Info("job no longer queued, skipping")
		return
	}

	for {
		done, leader := o.inflight.Begin(audioIdentity)
		if leader {
			err := o.transcribeAndCache(ctx, logger, job, audioIdentity)
			o.inflight.End(audioIdentity)
			if err != nil {
				o.failJob(ctx, logger, job, err)
				return
			}
			o.completeJob(ctx, logger, job)
			return
		}

		logger.Info("waiting on in-flight transcription", logging.String(logging.FieldIdentity, job.AudioIdentity))
		if err := o.store.UpdateProgress(ctx, job.ID, "waiting", "same audio already transcribing", 0); err != nil {
			logger.Debug("progress update failed", logging.Error(err))
		}
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		if _, ok, err := o.transcripts.Get(audioIdentity); err != nil {
			logger.Warn("transcript cache read failed", logging.Error(err))
		} else if ok {
			o.completeJob(ctx, logger, job)
			return
		}
		// The leader failed without caching anything; take the lead and run
		// the model ourselves.
	}
}

func (o *Orchestrator) repairPDF(ctx context.Context, logger *slog.Logger, job *jobs.Job) error {
	if err := o.store.UpdateProgress(ctx, job.ID, "repairing", "", 0); err != nil {
		logger.Debug("progress update failed", logging.Error(err))
	}
	path, err := o.uploads.Resolve(cas.Identity(job.PDFIdentity))
	if err != nil {
		return err
	}
	if err := o.repairer.Repair(ctx, path); err != nil {
		return err
	}
	if err := o.store.MarkRepaired(ctx, job.ID); err != nil {
		logger.Warn("clearing repair flag failed", logging.Error(err))
	}
	job.RepairPDF = false
	logger.Info("pdf repaired", logging.String(logging.FieldIdentity, job.PDFIdentity))
	return nil
}

func (o *Orchestrator) transcribeAndCache(ctx context.Context, logger *slog.Logger, job *jobs.Job, audioIdentity cas.Identity) error {
	audioPath, err := o.uploads.Resolve(audioIdentity)
	if err != nil {
		return err
	}
	progress := func(stage string, percent float64) {
		if err := o.store.UpdateProgress(ctx, job.ID, stage, "", percent); err != nil {
			logger.Debug("progress update failed", logging.Error(err))
		}
	}
	tr, err := o.engine.Transcribe(ctx, audioPath, progress)
	if err != nil {
		return err
	}
	if _, err := o.transcripts.Put(audioIdentity, tr); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) completeJob(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	if err := o.store.MarkCompleted(ctx, job.ID); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		o.setLastError(err)
		logger.Error("completing job failed", logging.Error(err))
		return
	}
	logger.Info("job completed", logging.String("title", job.Title))
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyJobCompleted(ctx, job.Title); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send completion notification")
		} else {
			logger.Debug("completion notification failed", logging.Error(err))
		}
	}
}

func (o *Orchestrator) failJob(ctx context.Context, logger *slog.Logger, job *jobs.Job, cause error) {
	if errors.Is(cause, context.Canceled) {
		logger.Debug("job interrupted by shutdown")
		return
	}
	o.setLastError(cause)
	reason := services.Reason(cause)
	if err := o.store.MarkError(ctx, job.ID, reason); err != nil {
		logger.Error("recording job failure failed", logging.Error(err))
	}
	logger.Error("job failed",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "job_failed"),
	)
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyJobFailed(ctx, job.Title, reason); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send failure notification")
		} else {
			logger.Debug("failure notification failed", logging.Error(err))
		}
	}
}
