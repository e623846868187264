package api

import (
	"context"

	"github.com/Bugaddr/audiolens/internal/jobs"
)

// JobReader abstracts the job persistence operations API queries need.
type JobReader interface {
	List(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Job, error)
	History(ctx context.Context) ([]*jobs.Job, error)
	Stats(ctx context.Context) (map[jobs.Status]int, error)
	GetByID(ctx context.Context, id string) (*jobs.Job, error)
}

// JobService exposes read-only job operations returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store}
}

// List returns jobs filtered by status, newest first.
func (s *JobService) List(ctx context.Context, statuses ...jobs.Status) ([]JobSummary, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	list, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(list), nil
}

// History returns dashboard entries for completed jobs, newest first.
func (s *JobService) History(ctx context.Context) ([]HistoryEntry, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	list, err := s.store.History(ctx)
	if err != nil {
		return nil, err
	}
	return HistoryFromJobs(list), nil
}

// Stats returns job summary counts keyed by status string.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeJobStats(stats), nil
}

// Describe fetches a single job record.
func (s *JobService) Describe(ctx context.Context, id string) (JobSummary, error) {
	if s == nil || s.store == nil {
		return JobSummary{}, nil
	}
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return JobSummary{}, err
	}
	return FromJob(job), nil
}
