package api

import (
	"testing"
	"time"

	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

func TestFromJobFormatsTimestamps(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	job := &jobs.Job{
		ID:            "job-1",
		Title:         "Example",
		Status:        jobs.StatusTranscribing,
		PDFIdentity:   "p1",
		AudioIdentity: "a1",
		ProgressStage: "transcribing",
		CreatedAt:     created,
		UpdatedAt:     created.Add(time.Minute),
	}
	dto := FromJob(job)
	if dto.CreatedAt != "2026-03-14T09:26:53.000Z" {
		t.Fatalf("unexpected created_at %q", dto.CreatedAt)
	}
	if dto.UpdatedAt != "2026-03-14T09:27:53.000Z" {
		t.Fatalf("unexpected updated_at %q", dto.UpdatedAt)
	}
	if dto.Status != "transcribing" || dto.Progress.Stage != "transcribing" {
		t.Fatalf("unexpected dto %+v", dto)
	}

	if got := FromJob(nil); got.ID != "" {
		t.Fatalf("nil job should convert to zero summary, got %+v", got)
	}
}

func TestStatusResponseForJobShapes(t *testing.T) {
	tr := &transcript.Transcript{Segments: []transcript.Segment{{Text: "hello", Start: 0, End: 1}}}

	completed := &jobs.Job{
		ID:        "done",
		Title:     "Finished Book",
		Status:    jobs.StatusCompleted,
		PDFFile:   "abc.pdf",
		AudioFile: "def.mp3",
	}
	resp := StatusResponseForJob(completed, tr)
	if resp.Status != "completed" {
		t.Fatalf("unexpected status %q", resp.Status)
	}
	if resp.PDFURL != "/uploads/abc.pdf" || resp.AudioURL != "/uploads/def.mp3" {
		t.Fatalf("unexpected urls %q %q", resp.PDFURL, resp.AudioURL)
	}
	if resp.Title != "Finished Book" || resp.Transcript == nil {
		t.Fatalf("completed response missing title or transcript: %+v", resp)
	}
	if resp.ErrorMsg != "" || resp.Progress != nil {
		t.Fatalf("completed response carries failure fields: %+v", resp)
	}

	errored := &jobs.Job{ID: "bad", Status: jobs.StatusError, ErrorMessage: "model failed"}
	resp = StatusResponseForJob(errored, nil)
	if resp.Status != "error" || resp.ErrorMsg != "model failed" {
		t.Fatalf("unexpected error response %+v", resp)
	}
	if resp.PDFURL != "" || resp.Transcript != nil {
		t.Fatalf("error response must not expose content: %+v", resp)
	}

	pending := &jobs.Job{
		ID:              "wip",
		Status:          jobs.StatusTranscribing,
		ProgressStage:   "chunking",
		ProgressPercent: 40,
	}
	resp = StatusResponseForJob(pending, nil)
	if resp.Status != "transcribing" {
		t.Fatalf("unexpected status %q", resp.Status)
	}
	if resp.Progress == nil || resp.Progress.Stage != "chunking" || resp.Progress.Percent != 40 {
		t.Fatalf("expected progress payload, got %+v", resp.Progress)
	}

	queued := &jobs.Job{ID: "new", Status: jobs.StatusQueued}
	resp = StatusResponseForJob(queued, nil)
	if resp.Status != "queued" || resp.Progress != nil {
		t.Fatalf("fresh queued response should be bare, got %+v", resp)
	}
}

func TestHistoryFromJobsDropsNonCompleted(t *testing.T) {
	list := []*jobs.Job{
		{ID: "c1", Title: "Kept", Status: jobs.StatusCompleted, PDFFile: "p.pdf", AudioFile: "a.mp3"},
		{ID: "e1", Title: "Failed", Status: jobs.StatusError},
		{ID: "q1", Title: "Waiting", Status: jobs.StatusQueued},
		nil,
	}
	entries := HistoryFromJobs(list)
	if len(entries) != 1 {
		t.Fatalf("expected 1 resumable entry, got %d", len(entries))
	}
	if entries[0].ID != "c1" || entries[0].AudioURL != "/uploads/a.mp3" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestUploadURLEmptyName(t *testing.T) {
	if got := UploadURL(""); got != "" {
		t.Fatalf("empty name should yield empty url, got %q", got)
	}
	if got := UploadURL("x.pdf"); got != "/uploads/x.pdf" {
		t.Fatalf("unexpected url %q", got)
	}
}
