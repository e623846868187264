// Package services defines the shared error taxonomy and context helpers
// used by the pipeline components.
//
// Errors are tagged with sentinel markers so callers can classify a
// failure with errors.Is without knowing which component produced it:
// invalid uploads are rejected synchronously, model and repair failures
// move a job to its terminal error state, and not-found conditions map
// to 404 responses.
package services
