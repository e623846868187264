package transcriber

import (
	"context"

	"github.com/Bugaddr/audiolens/internal/transcript"
)

// ProgressFunc receives coarse progress updates during transcription.
// percent is in [0, 100]; stage is a short human-readable label.
type ProgressFunc func(stage string, percent float64)

// Progress stage labels surfaced in job status.
const (
	StageProbing      = "probing"
	StageChunking     = "chunking"
	StageTranscribing = "transcribing"
	StageMerging      = "merging"
)

// Transcriber produces a transcript for a stored audio file. Implementations
// must be safe for concurrent use; the job runner invokes one call per job
// and never calls twice concurrently for the same audio identity.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, progress ProgressFunc) (transcript.Transcript, error)
}
