package api

import "github.com/Bugaddr/audiolens/internal/transcript"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// UploadResponse acknowledges an accepted upload pair.
type UploadResponse struct {
	JobID string `json:"job_id"`
}

// JobProgress captures pipeline progress for a job.
type JobProgress struct {
	Stage   string  `json:"stage,omitempty"`
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// StatusResponse is the polled job status payload. Optional fields appear
// per state: pdf_url, audio_url, title, and transcript only once completed;
// error_msg only for errored jobs; progress only while work is pending.
type StatusResponse struct {
	Status     string                 `json:"status"`
	Title      string                 `json:"title,omitempty"`
	PDFURL     string                 `json:"pdf_url,omitempty"`
	AudioURL   string                 `json:"audio_url,omitempty"`
	Transcript *transcript.Transcript `json:"transcript,omitempty"`
	ErrorMsg   string                 `json:"error_msg,omitempty"`
	Progress   *JobProgress           `json:"progress,omitempty"`
}

// HistoryEntry is one completed job in the dashboard listing.
type HistoryEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	PDFURL   string `json:"pdf_url"`
	AudioURL string `json:"audio_url"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a request-level failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JobSummary describes a job record in a transport-friendly format.
type JobSummary struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Status        string      `json:"status"`
	PDFIdentity   string      `json:"pdf_identity,omitempty"`
	AudioIdentity string      `json:"audio_identity,omitempty"`
	PDFFile       string      `json:"pdf_file,omitempty"`
	AudioFile     string      `json:"audio_file,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	Progress      JobProgress `json:"progress"`
	CreatedAt     string      `json:"created_at,omitempty"`
	UpdatedAt     string      `json:"updated_at,omitempty"`
}

// PipelineStatus summarizes orchestrator execution state.
type PipelineStatus struct {
	Running   bool           `json:"running"`
	JobStats  map[string]int `json:"job_stats"`
	LastError string         `json:"last_error,omitempty"`
	LastJob   *JobSummary    `json:"last_job,omitempty"`
}

// DependencyStatus captures availability of an external tool.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	JobDBPath    string             `json:"job_db_path"`
	LockFilePath string             `json:"lock_file_path"`
	Pipeline     PipelineStatus     `json:"pipeline"`
	Dependencies []DependencyStatus `json:"dependencies,omitempty"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// JobStatsResponse provides a normalized job stats payload.
type JobStatsResponse struct {
	Counts map[string]int `json:"counts"`
}
