package transcriptcache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"log/slog"

	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

func testIdentity(seed string) cas.Identity {
	sum := sha256.Sum256([]byte(seed))
	return cas.Identity(hex.EncodeToString(sum[:]))
}

func sampleTranscript() transcript.Transcript {
	return transcript.Transcript{Segments: []transcript.Segment{
		{Text: "hello world", Start: 0, End: 1.5, Words: []transcript.Word{
			{Word: "hello", Start: 0, End: 0.7},
			{Word: "world", Start: 0.8, End: 1.5},
		}},
	}}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	cache, err := New(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	identity := testIdentity("audio-1")

	path, err := cache.Put(identity, sampleTranscript())
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if path != cache.Path(identity) {
		t.Fatalf("unexpected path %q", path)
	}

	got, ok, err := cache.Get(identity)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.Segments) != 1 || got.Segments[0].Text != "hello world" {
		t.Fatalf("unexpected transcript %+v", got)
	}
	if len(got.Segments[0].Words) != 2 {
		t.Fatalf("expected word timings to survive, got %+v", got.Segments[0])
	}
}

func TestGetMissesUnknownIdentity(t *testing.T) {
	cache, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, ok, err := cache.Get(testIdentity("never stored"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss for unknown identity")
	}
}

func TestGetRejectsMalformedIdentity(t *testing.T) {
	cache, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := cache.Get(cas.Identity("not-a-digest")); err == nil {
		t.Fatal("expected error for malformed identity")
	}
}

func TestGetSurfacesCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	cache, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	identity := testIdentity("corrupt")
	if err := os.WriteFile(cache.Path(identity), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt entry: %v", err)
	}
	if _, _, err := cache.Get(identity); err == nil {
		t.Fatal("expected decode error for corrupt entry")
	}
}

func TestClearRemovesOnlyTranscripts(t *testing.T) {
	dir := t.TempDir()
	cache, err := New(dir, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := cache.Put(testIdentity("a"), sampleTranscript()); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if _, err := cache.Put(testIdentity("b"), sampleTranscript()); err != nil {
		t.Fatalf("Put b: %v", err)
	}
	foreign := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(foreign, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("write foreign file: %v", err)
	}

	removed, err := cache.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("foreign file should survive clear: %v", err)
	}

	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Fatalf("expected empty cache after clear, got %d entries", stats.Entries)
	}
}

func TestStatsCountsEntries(t *testing.T) {
	cache, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := cache.Put(testIdentity("x"), sampleTranscript()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.TotalBytes == 0 {
		t.Fatal("expected non-zero total bytes")
	}
}
