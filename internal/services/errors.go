package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput marks upload validation failures. They surface
	// synchronously; no job record is created.
	ErrInvalidInput = errors.New("invalid input")
	// ErrModel marks recognition engine failures. Terminal for the job.
	ErrModel = errors.New("model error")
	// ErrRepair marks PDF repair failures that left no loadable file.
	ErrRepair = errors.New("repair error")
	// ErrNotFound marks unknown job ids and missing stored content.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks infrastructure failures (disk, database). They are
	// reported, never retried automatically.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Reason converts a pipeline error into the human-readable text stored on a
// failed job and returned from the status endpoint. The marker prefix is kept;
// it tells the user which collaborator gave up.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
