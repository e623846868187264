package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/transcriptcache"
)

var (
	ErrTranscriptCacheNotConfigured = errors.New("transcript cache dir is not configured")
	ErrUploadStoreNotConfigured     = errors.New("upload dir is not configured")
)

// ClearJobsScope selects which job records a clear operation removes.
type ClearJobsScope string

const (
	ClearScopeAll       ClearJobsScope = "all"
	ClearScopeCompleted ClearJobsScope = "completed"
	ClearScopeErrored   ClearJobsScope = "errored"
)

// ClearJobsRequest describes a jobs clear operation.
type ClearJobsRequest struct {
	Config *config.Config
	Scope  ClearJobsScope
}

// ClearJobs removes job records in the requested scope and reports how many
// went away.
func ClearJobs(ctx context.Context, req ClearJobsRequest) (int64, error) {
	cfg := req.Config
	if cfg == nil {
		return 0, fmt.Errorf("configuration is required")
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return 0, fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	switch req.Scope {
	case ClearScopeCompleted:
		return store.ClearCompleted(ctx)
	case ClearScopeErrored:
		return store.ClearErrored(ctx)
	case ClearScopeAll, "":
		return store.Clear(ctx)
	default:
		return 0, fmt.Errorf("unknown clear scope %q", req.Scope)
	}
}

// RemoveJob deletes one job record by identifier.
func RemoveJob(ctx context.Context, cfg *config.Config, id string) (bool, error) {
	if cfg == nil {
		return false, fmt.Errorf("configuration is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("job id is required")
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return false, fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()
	return store.Remove(ctx, id)
}

// JobDatabaseHealth runs the job store diagnostics used by doctor output.
func JobDatabaseHealth(ctx context.Context, cfg *config.Config) (jobs.DatabaseHealth, error) {
	if cfg == nil {
		return jobs.DatabaseHealth{}, fmt.Errorf("configuration is required")
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return jobs.DatabaseHealth{}, fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()
	return store.CheckHealth(ctx)
}

// OpenTranscriptCache validates config and initializes the transcript cache.
func OpenTranscriptCache(cfg *config.Config, logger *slog.Logger) (*transcriptcache.Cache, error) {
	if cfg == nil || strings.TrimSpace(cfg.Paths.TranscriptCacheDir) == "" {
		return nil, ErrTranscriptCacheNotConfigured
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return transcriptcache.New(cfg.Paths.TranscriptCacheDir, logger)
}

// OpenUploadStore validates config and initializes the upload store.
func OpenUploadStore(cfg *config.Config, logger *slog.Logger) (*cas.Store, error) {
	if cfg == nil || strings.TrimSpace(cfg.Paths.UploadDir) == "" {
		return nil, ErrUploadStoreNotConfigured
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return cas.New(cfg, logger)
}

// CacheOverview aggregates cache statistics for CLI display.
type CacheOverview struct {
	Transcripts transcriptcache.Stats `json:"transcripts"`
	Uploads     cas.Stats             `json:"uploads"`
}

// GatherCacheOverview collects transcript cache and upload store statistics.
func GatherCacheOverview(ctx context.Context, cfg *config.Config, logger *slog.Logger) (CacheOverview, error) {
	transcripts, err := OpenTranscriptCache(cfg, logger)
	if err != nil {
		return CacheOverview{}, err
	}
	uploads, err := OpenUploadStore(cfg, logger)
	if err != nil {
		return CacheOverview{}, err
	}
	tStats, err := transcripts.Stats()
	if err != nil {
		return CacheOverview{}, fmt.Errorf("transcript cache stats: %w", err)
	}
	uStats, err := uploads.Stats(ctx)
	if err != nil {
		return CacheOverview{}, fmt.Errorf("upload store stats: %w", err)
	}
	return CacheOverview{Transcripts: tStats, Uploads: uStats}, nil
}

// PurgeCachesRequest selects which stores a purge touches. Upload purges
// only remove files no job references.
type PurgeCachesRequest struct {
	Config      *config.Config
	Logger      *slog.Logger
	Transcripts bool
	Uploads     bool
}

// PurgeCachesResult reports what a purge removed.
type PurgeCachesResult struct {
	TranscriptsRemoved int `json:"transcripts_removed"`
	UploadsRemoved     int `json:"uploads_removed"`
}

// PurgeCaches clears the transcript cache and removes unreferenced uploads.
// Purging transcripts does not touch job records: completed jobs whose
// transcript is purged will recompute on the next identical upload.
func PurgeCaches(ctx context.Context, req PurgeCachesRequest) (PurgeCachesResult, error) {
	cfg := req.Config
	if cfg == nil {
		return PurgeCachesResult{}, fmt.Errorf("configuration is required")
	}
	var result PurgeCachesResult

	if req.Transcripts {
		cache, err := OpenTranscriptCache(cfg, req.Logger)
		if err != nil {
			return result, err
		}
		removed, err := cache.Clear()
		if err != nil {
			return result, fmt.Errorf("clear transcript cache: %w", err)
		}
		result.TranscriptsRemoved = removed
	}

	if req.Uploads {
		uploads, err := OpenUploadStore(cfg, req.Logger)
		if err != nil {
			return result, err
		}
		store, err := jobs.Open(cfg)
		if err != nil {
			return result, fmt.Errorf("open job store: %w", err)
		}
		defer store.Close()
		referenced, err := store.ReferencedIdentities(ctx)
		if err != nil {
			return result, fmt.Errorf("collect referenced identities: %w", err)
		}
		keep := make(map[cas.Identity]struct{}, len(referenced))
		for identity := range referenced {
			keep[cas.Identity(identity)] = struct{}{}
		}
		removed, err := uploads.RemoveUnreferenced(ctx, keep)
		if err != nil {
			return result, fmt.Errorf("remove unreferenced uploads: %w", err)
		}
		result.UploadsRemoved = removed
	}

	return result, nil
}
