// Package daemon ties the orchestrator and the HTTP server into a
// single-instance background process guarded by a file lock.
package daemon
