package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries for the given config.
// Both the serve startup path and the doctor command use this to avoid
// duplicating the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	requirements := []deps.Requirement{
		{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Runs the WhisperX speech model",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Splits long audio into chunks",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Probes audio duration before chunking",
		},
		{
			Name:        "qpdf",
			Command:     cfg.QPDFBinary(),
			Description: "Repairs structurally damaged PDFs",
			Optional:    !cfg.Uploads.PDFRepairEnabled,
		},
	}
	return deps.CheckBinaries(requirements)
}

// CheckNotificationsFromConfig summarizes the push notification setup.
// Notifications are best-effort, so this never probes the network; it only
// reports whether a topic is configured.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled (no ntfy topic)"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("ntfy topic %q", topic)}
}
