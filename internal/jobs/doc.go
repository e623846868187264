// Package jobs persists upload jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, guarded
// status transitions, and the history and stats queries the HTTP API and
// CLI read. Job records capture content identities, stored file names,
// progress, and the failure reason, so the orchestrator can coordinate
// work and a restarted daemon keeps serving prior jobs without
// recomputation.
//
// Treat this package as the single source of truth for job semantics; when
// you add new statuses or fields, update schema.sql and bump schemaVersion.
package jobs
