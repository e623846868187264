// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// This package has no audiolens-specific dependencies and could be extracted
// as a standalone library.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual stream properties
//   - Format: container-level metadata (duration, size)
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
package ffprobe
