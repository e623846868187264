package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/testsupport"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

func TestClearJobsScopes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store := testsupport.MustOpenStore(t, cfg)
	completed := testsupport.NewJob(t, store, "Completed")
	if err := store.MarkCompleted(ctx, completed.ID); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	errored := testsupport.NewJob(t, store, "Errored")
	if err := store.MarkError(ctx, errored.ID, "boom"); err != nil {
		t.Fatalf("MarkError failed: %v", err)
	}
	testsupport.NewJob(t, store, "Queued")

	removed, err := ClearJobs(ctx, ClearJobsRequest{Config: cfg, Scope: ClearScopeErrored})
	if err != nil {
		t.Fatalf("ClearJobs failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 errored job cleared, got %d", removed)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 surviving jobs, got %d", len(remaining))
	}

	removed, err = ClearJobs(ctx, ClearJobsRequest{Config: cfg})
	if err != nil {
		t.Fatalf("ClearJobs all failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected remaining 2 cleared, got %d", removed)
	}
}

func TestClearJobsRejectsUnknownScope(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := ClearJobs(context.Background(), ClearJobsRequest{Config: cfg, Scope: "bogus"}); err == nil {
		t.Fatal("expected unknown scope error")
	}
	if _, err := ClearJobs(context.Background(), ClearJobsRequest{}); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestPurgeCachesRemovesUnreferencedUploads(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	uploads, err := OpenUploadStore(cfg, nil)
	if err != nil {
		t.Fatalf("OpenUploadStore failed: %v", err)
	}
	kept, _, err := uploads.Put(strings.NewReader("referenced bytes"), ".pdf")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	orphan, _, err := uploads.Put(strings.NewReader("orphan bytes"), ".mp3")
	if err != nil {
		t.Fatalf("Put orphan failed: %v", err)
	}

	store := testsupport.MustOpenStore(t, cfg)
	if _, err := store.Create(ctx, &jobs.Job{
		Title:         "Keeper",
		PDFIdentity:   kept.String(),
		AudioIdentity: kept.String(),
		PDFFile:       kept.String() + ".pdf",
		AudioFile:     kept.String() + ".pdf",
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	cache, err := OpenTranscriptCache(cfg, nil)
	if err != nil {
		t.Fatalf("OpenTranscriptCache failed: %v", err)
	}
	sum := sha256.Sum256([]byte("cached audio"))
	if _, err := cache.Put(cas.Identity(hex.EncodeToString(sum[:])), transcript.Transcript{}); err != nil {
		t.Fatalf("cache Put failed: %v", err)
	}

	result, err := PurgeCaches(ctx, PurgeCachesRequest{Config: cfg, Transcripts: true, Uploads: true})
	if err != nil {
		t.Fatalf("PurgeCaches failed: %v", err)
	}
	if result.TranscriptsRemoved != 1 {
		t.Fatalf("expected 1 transcript removed, got %d", result.TranscriptsRemoved)
	}
	if result.UploadsRemoved != 1 {
		t.Fatalf("expected 1 upload removed, got %d", result.UploadsRemoved)
	}

	if _, err := uploads.Resolve(kept); err != nil {
		t.Fatalf("referenced upload should survive: %v", err)
	}
	if _, err := os.Stat(uploads.PathFor(orphan, ".mp3")); err == nil {
		t.Fatal("orphan upload should be gone")
	}
}

func TestGatherCacheOverview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	overview, err := GatherCacheOverview(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("GatherCacheOverview failed: %v", err)
	}
	if overview.Transcripts.Entries != 0 || overview.Uploads.Entries != 0 {
		t.Fatalf("fresh caches should be empty: %+v", overview)
	}
}
