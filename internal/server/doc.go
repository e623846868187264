// Package server exposes the HTTP surface clients poll against.
//
// The API is deliberately small: multipart upload intake, per-job status
// polling, completed-job history, and static delivery of stored uploads so
// browsers can stream audio with range requests. Handlers shape their
// payloads through the api package so wire formats stay in one place, and
// every request carries a request id for log correlation.
//
// The server owns its listener and shuts down when the daemon context is
// cancelled. Keep pipeline logic out of this package: handlers validate,
// delegate to the orchestrator or job store, and translate errors to
// status codes.
package server
