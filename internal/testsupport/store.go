package testsupport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Identity returns a deterministic content identity derived from seed, in
// the same shape the upload store assigns.
func Identity(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// NewJob creates a queued job for tests using the provided store. The PDF
// and audio identities are derived from the title so distinct titles never
// collide.
func NewJob(t testing.TB, store *jobs.Store, title string) *jobs.Job {
	t.Helper()

	pdfIdentity := Identity(title + "-pdf")
	audioIdentity := Identity(title + "-audio")
	job, err := store.Create(context.Background(), &jobs.Job{
		Title:         title,
		PDFIdentity:   pdfIdentity,
		AudioIdentity: audioIdentity,
		PDFFile:       pdfIdentity + ".pdf",
		AudioFile:     audioIdentity + ".mp3",
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
