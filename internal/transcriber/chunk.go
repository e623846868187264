package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/services"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

const chunkFilePattern = "chunk_%04d.wav"

// transcribeChunked splits long audio into fixed-duration WAV chunks,
// transcribes each, and shifts timestamps back into the source timeline.
// Chunk boundaries land mid-word occasionally; that word is recognized in
// whichever chunk holds more of it, so the merged stream stays ordered.
func (w *WhisperX) transcribeChunked(ctx context.Context, audioPath string, progress ProgressFunc) ([]transcript.Segment, error) {
	chunkDir, err := os.MkdirTemp(w.workDir, "chunks-*")
	if err != nil {
		return nil, services.Wrap(services.ErrModel, "transcriber", "chunk", "create chunk dir", err)
	}
	defer os.RemoveAll(chunkDir)

	progress(StageChunking, 0)
	chunks, err := w.splitAudio(ctx, audioPath, chunkDir)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, services.Wrap(services.ErrModel, "transcriber", "chunk", "ffmpeg produced no chunks", nil)
	}

	merged := make([]transcript.Segment, 0, len(chunks)*64)
	offset := 0.0
	for i, chunk := range chunks {
		progress(StageTranscribing, float64(i)/float64(len(chunks))*100)

		segments, err := w.transcribeFile(ctx, chunk, chunkDir)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		merged = append(merged, shiftSegments(segments, offset)...)
		offset += w.chunkDuration(ctx, chunk)
	}

	w.logger.Debug("merged chunk transcripts",
		logging.Int("chunks", len(chunks)),
		logging.Int("segments", len(merged)),
	)
	return merged, nil
}

// splitAudio re-encodes the source into mono 16kHz WAV chunks, which is the
// input format WhisperX resamples to anyway.
func (w *WhisperX) splitAudio(ctx context.Context, source, chunkDir string) ([]string, error) {
	pattern := filepath.Join(chunkDir, chunkFilePattern)
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", w.chunkSeconds),
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		pattern,
	}
	if err := w.run(ctx, w.ffmpegBinary, args...); err != nil {
		return nil, services.Wrap(services.ErrModel, "transcriber", "ffmpeg", "split audio", err)
	}

	entries, err := os.ReadDir(chunkDir)
	if err != nil {
		return nil, services.Wrap(services.ErrModel, "transcriber", "chunk", "list chunks", err)
	}
	chunks := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, ".wav") {
			continue
		}
		chunks = append(chunks, filepath.Join(chunkDir, name))
	}
	sort.Strings(chunks)
	return chunks, nil
}

// chunkDuration measures an individual chunk so offsets stay exact even when
// the final chunk runs short. Probe failures fall back to the nominal length.
func (w *WhisperX) chunkDuration(ctx context.Context, chunk string) float64 {
	result, err := w.probeAudio(ctx, w.ffprobeBinary, chunk)
	if err == nil {
		if d := result.DurationSeconds(); d > 0 {
			return d
		}
	}
	return float64(w.chunkSeconds)
}

func shiftSegments(segments []transcript.Segment, offset float64) []transcript.Segment {
	if offset == 0 {
		return segments
	}
	shifted := make([]transcript.Segment, len(segments))
	for i, seg := range segments {
		seg.Start += offset
		seg.End += offset
		if len(seg.Words) > 0 {
			words := make([]transcript.Word, len(seg.Words))
			for j, word := range seg.Words {
				word.Start += offset
				word.End += offset
				words[j] = word
			}
			seg.Words = words
		}
		shifted[i] = seg
	}
	return shifted
}
