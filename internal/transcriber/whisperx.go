package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/media/ffprobe"
	"github.com/Bugaddr/audiolens/internal/services"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

// WhisperX configuration constants.
const (
	uvxCommand     = "uvx"
	cudaIndexURL   = "https://download.pytorch.org/whl/cu128"
	pypiIndexURL   = "https://pypi.org/simple"
	batchSize      = "4"
	outputFormat   = "json"
	cpuDevice      = "cpu"
	cudaDevice     = "cuda"
	cpuComputeType = "float32"
)

// WhisperX runs the WhisperX speech model through uvx.
type WhisperX struct {
	model         string
	language      string
	cudaEnabled   bool
	chunkSeconds  int
	workDir       string
	ffmpegBinary  string
	ffprobeBinary string
	logger        *slog.Logger

	commandRunner func(ctx context.Context, name string, args ...string) error
	probeAudio    func(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

// NewWhisperX creates a transcriber from daemon configuration.
func NewWhisperX(cfg *config.Config, logger *slog.Logger) *WhisperX {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WhisperX{
		model:         cfg.Transcriber.Model,
		language:      cfg.Transcriber.Language,
		cudaEnabled:   cfg.Transcriber.CUDAEnabled,
		chunkSeconds:  cfg.Transcriber.ChunkDurationSeconds,
		workDir:       cfg.Paths.WorkDir,
		ffmpegBinary:  cfg.FFmpegBinary(),
		ffprobeBinary: cfg.FFprobeBinary(),
		logger:        logging.NewComponentLogger(logger, "transcriber"),
		probeAudio:    ffprobe.Inspect,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (w *WhisperX) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	w.commandRunner = runner
}

// WithProber sets a custom audio prober (for testing).
func (w *WhisperX) WithProber(probe func(ctx context.Context, binary, path string) (ffprobe.Result, error)) {
	w.probeAudio = probe
}

// Model returns the configured model name for logging.
func (w *WhisperX) Model() string { return w.model }

// Transcribe runs the model on audioPath and returns the normalized
// transcript. Long audio is chunked first; see transcribeChunked.
func (w *WhisperX) Transcribe(ctx context.Context, audioPath string, progress ProgressFunc) (transcript.Transcript, error) {
	audioPath = strings.TrimSpace(audioPath)
	if audioPath == "" {
		return transcript.Transcript{}, services.Wrap(services.ErrInvalidInput, "transcriber", "transcribe", "empty audio path", nil)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return transcript.Transcript{}, services.Wrap(services.ErrInvalidInput, "transcriber", "transcribe", fmt.Sprintf("stat %q", audioPath), err)
	}
	if progress == nil {
		progress = func(string, float64) {}
	}

	progress(StageProbing, 0)
	result, err := w.probeAudio(ctx, w.ffprobeBinary, audioPath)
	if err != nil {
		return transcript.Transcript{}, services.Wrap(services.ErrModel, "transcriber", "ffprobe", "inspect audio", err)
	}
	duration := result.DurationSeconds()

	var raw []transcript.Segment
	if duration > float64(w.chunkSeconds) {
		w.logger.Info("chunking long audio",
			logging.Float64("duration_seconds", duration),
			logging.Int("chunk_seconds", w.chunkSeconds),
		)
		raw, err = w.transcribeChunked(ctx, audioPath, progress)
	} else {
		progress(StageTranscribing, 0)
		raw, err = w.transcribeWhole(ctx, audioPath)
	}
	if err != nil {
		return transcript.Transcript{}, err
	}

	progress(StageMerging, 95)
	tr := transcript.Normalize(raw)
	w.logger.Info("transcription finished",
		logging.Int("segments", len(tr.Segments)),
		logging.Int("words", tr.WordCount()),
		logging.Float64("duration_seconds", tr.Duration()),
	)
	return tr, nil
}

func (w *WhisperX) transcribeWhole(ctx context.Context, audioPath string) ([]transcript.Segment, error) {
	outputDir, err := os.MkdirTemp(w.workDir, "transcribe-*")
	if err != nil {
		return nil, services.Wrap(services.ErrModel, "transcriber", "whisperx", "create output dir", err)
	}
	defer os.RemoveAll(outputDir)

	return w.transcribeFile(ctx, audioPath, outputDir)
}

// transcribeFile runs whisperx for one file and parses the JSON it writes.
func (w *WhisperX) transcribeFile(ctx context.Context, source, outputDir string) ([]transcript.Segment, error) {
	args := w.buildArgs(source, outputDir)
	if err := w.run(ctx, uvxCommand, args...); err != nil {
		return nil, services.Wrap(services.ErrModel, "transcriber", "whisperx", "run model", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	segments, err := loadSegments(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrModel, "transcriber", "whisperx", "read model output", err)
	}
	return segments, nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (w *WhisperX) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 20)

	if w.cudaEnabled {
		args = append(args,
			"--index-url", cudaIndexURL,
			"--extra-index-url", pypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", pypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", w.model,
		"--batch_size", batchSize,
		"--output_dir", outputDir,
		"--output_format", outputFormat,
	)

	if lang := strings.TrimSpace(w.language); lang != "" {
		args = append(args, "--language", lang)
	}

	if w.cudaEnabled {
		args = append(args, "--device", cudaDevice)
	} else {
		args = append(args, "--device", cpuDevice, "--compute_type", cpuComputeType)
	}

	return args
}

// run executes a command, using the custom runner if set.
func (w *WhisperX) run(ctx context.Context, name string, args ...string) error {
	if w.commandRunner != nil {
		return w.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking
	// WhisperX checkpoint loading. Force legacy behavior.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// whisperXPayload is the JSON structure WhisperX writes; it matches the
// transcript wire shape so segments decode directly.
type whisperXPayload struct {
	Segments []transcript.Segment `json:"segments"`
}

func loadSegments(jsonPath string) ([]transcript.Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}
