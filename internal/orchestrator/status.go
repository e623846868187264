package orchestrator

import (
	"context"

	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
)

// StatusSummary reports lightweight pipeline diagnostics.
type StatusSummary struct {
	Running   bool
	LastError string
	LastJob   *jobs.Job
	JobStats  map[jobs.Status]int
}

// Status returns the latest pipeline information.
func (o *Orchestrator) Status(ctx context.Context) StatusSummary {
	o.mu.RLock()
	running := o.running
	lastErr := o.lastErr
	lastJob := o.lastJob
	o.mu.RUnlock()

	stats, err := o.store.Stats(ctx)
	if err != nil {
		o.logger.Warn("failed to read job stats", logging.Error(err))
	}

	summary := StatusSummary{Running: running, JobStats: stats}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastJob != nil {
		copy := *lastJob
		summary.LastJob = &copy
	}
	return summary
}

func (o *Orchestrator) setLastError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}

func (o *Orchestrator) setLastJob(job *jobs.Job) {
	o.mu.Lock()
	if job != nil {
		copy := *job
		o.lastJob = &copy
	} else {
		o.lastJob = nil
	}
	o.mu.Unlock()
}
