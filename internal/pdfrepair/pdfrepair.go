// Package pdfrepair rewrites structurally damaged PDFs with qpdf.
//
// Uploaded PDFs come from scanners and ad-hoc export tools and frequently
// carry broken cross-reference tables. A single linearization pass fixes the
// common cases; files qpdf cannot salvage fail the job instead of producing
// a reader that renders nothing.
package pdfrepair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/services"
)

// qpdf exit codes: 0 success, 2 errors, 3 warnings with output written.
const exitCodeWarnings = 3

// runFunc executes the repair binary and reports its exit code. err is
// reserved for failures to run the binary at all.
type runFunc func(ctx context.Context, binary string, args ...string) (exitCode int, output string, err error)

// Service repairs PDFs in place using qpdf.
type Service struct {
	binary string
	logger *slog.Logger
	run    runFunc
}

// New creates a repair service around the given qpdf binary.
func New(binary string, logger *slog.Logger) *Service {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "qpdf"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		binary: binary,
		logger: logging.NewComponentLogger(logger, "pdfrepair"),
		run:    runQPDF,
	}
}

// WithRunner sets a custom command runner (for testing).
func (s *Service) WithRunner(run runFunc) {
	s.run = run
}

// Repair rewrites the PDF at path in place. The repaired bytes replace the
// original via rename, so concurrent readers see either the old or the new
// file, never a partial one. qpdf warnings are tolerated as long as output
// was produced; hard failures return an error carrying ErrRepair.
func (s *Service) Repair(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return services.Wrap(services.ErrInvalidInput, "pdfrepair", "repair", "empty path", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return services.Wrap(services.ErrInvalidInput, "pdfrepair", "repair", fmt.Sprintf("stat %q", path), err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".repair.tmp")
	defer os.Remove(tmp)

	code, output, err := s.run(ctx, s.binary, "--linearize", path, tmp)
	if err != nil {
		return services.Wrap(services.ErrRepair, "pdfrepair", "qpdf", "run qpdf", err)
	}
	switch code {
	case 0:
	case exitCodeWarnings:
		s.logger.Warn("qpdf repaired with warnings",
			logging.String("file", filepath.Base(path)),
			logging.String("detail", firstLine(output)),
		)
	default:
		return services.Wrap(services.ErrRepair, "pdfrepair", "qpdf",
			fmt.Sprintf("exit status %d: %s", code, firstLine(output)), nil)
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return services.Wrap(services.ErrRepair, "pdfrepair", "qpdf", "qpdf wrote no output", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrRepair, "pdfrepair", "qpdf", "qpdf wrote empty output", nil)
	}
	if err := os.Rename(tmp, path); err != nil {
		return services.Wrap(services.ErrRepair, "pdfrepair", "replace", fmt.Sprintf("replace %q", path), err)
	}
	s.logger.Debug("pdf repaired", logging.String("file", filepath.Base(path)))
	return nil
}

func runQPDF(ctx context.Context, binary string, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), string(output), nil
		}
		return 0, string(output), err
	}
	return 0, string(output), nil
}

func firstLine(output string) string {
	output = strings.TrimSpace(output)
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		output = output[:idx]
	}
	return output
}
