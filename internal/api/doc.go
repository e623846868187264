// Package api defines wire-format types and converters for the HTTP surface
// and the CLI. It translates internal job models into transport-friendly
// DTOs so the viewer and command output never couple to internal types.
//
// # Key Types
//
// StatusResponse: the polled job payload whose optional fields appear per
// state (urls/title/transcript when completed, error_msg when errored,
// progress while work is pending).
//
// HistoryEntry: one resumable completed job for the dashboard listing.
//
// JobSummary: full transport representation of a job record for CLI tables
// and daemon status.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// # Converters
//
// FromJob: jobs.Job -> JobSummary with RFC3339 timestamps.
//
// StatusResponseForJob: jobs.Job (+ cached transcript) -> the per-state
// StatusResponse shape.
//
// HistoryFromJobs: completed jobs -> dashboard entries with upload URLs.
//
// # Design Notes
//
// JSON tags use snake_case so payloads stay byte-compatible with the viewer
// client's existing protocol (job_id, pdf_url, audio_url, error_msg).
// Upload URLs are root-relative (/uploads/{name}); clients resolve them
// against the daemon address they already talk to. Timestamps use RFC3339
// with milliseconds.
package api
