package preflight

import (
	"github.com/Bugaddr/audiolens/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks for the given config. Directory
// checks run unconditionally: every path is written during normal
// operation, so a broken one fails the first job it touches.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Upload store", cfg.Paths.UploadDir),
		CheckDirectoryAccess("Transcript cache", cfg.Paths.TranscriptCacheDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
}

// FailedResults filters results down to failed checks.
func FailedResults(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
