// Package notifications delivers job lifecycle events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The orchestrator emits one event per terminal job transition so
// a long transcription can be left unattended.
//
// Extend this package if you need alternative transports; callers depend
// only on the Service interface.
package notifications
