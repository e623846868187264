package api

import (
	"time"

	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/orchestrator"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

// UploadURL returns the root-relative URL a stored upload is served under.
func UploadURL(name string) string {
	if name == "" {
		return ""
	}
	return "/uploads/" + name
}

// FromJob converts a job record to its API representation.
func FromJob(job *jobs.Job) JobSummary {
	if job == nil {
		return JobSummary{}
	}
	dto := JobSummary{
		ID:            job.ID,
		Title:         job.Title,
		Status:        string(job.Status),
		PDFIdentity:   job.PDFIdentity,
		AudioIdentity: job.AudioIdentity,
		PDFFile:       job.PDFFile,
		AudioFile:     job.AudioFile,
		ErrorMessage:  job.ErrorMessage,
		Progress: JobProgress{
			Stage:   job.ProgressStage,
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(list []*jobs.Job) []JobSummary {
	if len(list) == 0 {
		return nil
	}
	out := make([]JobSummary, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// StatusResponseForJob builds the per-state polling payload. The transcript
// is attached only for completed jobs; callers fetch it from the cache and
// may pass nil when the cached copy is unavailable.
func StatusResponseForJob(job *jobs.Job, tr *transcript.Transcript) StatusResponse {
	if job == nil {
		return StatusResponse{}
	}
	resp := StatusResponse{Status: string(job.Status)}
	switch job.Status {
	case jobs.StatusCompleted:
		resp.Title = job.Title
		resp.PDFURL = UploadURL(job.PDFFile)
		resp.AudioURL = UploadURL(job.AudioFile)
		resp.Transcript = tr
	case jobs.StatusError:
		resp.ErrorMsg = job.ErrorMessage
	default:
		if job.ProgressStage != "" || job.ProgressPercent > 0 || job.ProgressMessage != "" {
			resp.Progress = &JobProgress{
				Stage:   job.ProgressStage,
				Percent: job.ProgressPercent,
				Message: job.ProgressMessage,
			}
		}
	}
	return resp
}

// HistoryFromJobs converts completed jobs into dashboard entries. Jobs in
// any other state are dropped so an errored job is never offered for
// resume.
func HistoryFromJobs(list []*jobs.Job) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(list))
	for _, job := range list {
		if job == nil || job.Status != jobs.StatusCompleted {
			continue
		}
		out = append(out, HistoryEntry{
			ID:       job.ID,
			Title:    job.Title,
			PDFURL:   UploadURL(job.PDFFile),
			AudioURL: UploadURL(job.AudioFile),
		})
	}
	return out
}

// FromStatusSummary converts an orchestrator status summary to API payload.
func FromStatusSummary(summary orchestrator.StatusSummary) PipelineStatus {
	status := PipelineStatus{
		Running:  summary.Running,
		JobStats: MergeJobStats(summary.JobStats),
	}
	if summary.LastError != "" {
		status.LastError = summary.LastError
	}
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob)
		status.LastJob = &last
	}
	return status
}

// MergeJobStats produces a string-keyed representation of job stats.
func MergeJobStats(stats map[jobs.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns an empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
