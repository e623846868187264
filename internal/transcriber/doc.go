// Package transcriber turns stored audio files into normalized transcripts.
//
// The only production implementation drives WhisperX through uvx, so no
// Python environment management happens here; uvx resolves and caches the
// model runtime on first use. Audio longer than the configured chunk
// duration is split with ffmpeg and transcribed chunk by chunk, with
// timestamps shifted back into the original timeline before normalization.
//
// Key types:
//   - Transcriber: the interface the job runner depends on
//   - WhisperX: the uvx-backed implementation
//   - ProgressFunc: optional callback surfaced in job status
package transcriber
