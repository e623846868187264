package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/orchestrator"
	"github.com/Bugaddr/audiolens/internal/testsupport"
	"github.com/Bugaddr/audiolens/internal/transcriber"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

// stubTranscriber fails loudly: handler tests never start the dispatcher,
// so any call means a request path reached the model by mistake.
type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string, transcriber.ProgressFunc) (transcript.Transcript, error) {
	return transcript.Transcript{}, errors.New("transcriber must not run")
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *orchestrator.Orchestrator, *jobs.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled())
	return newTestServerWithConfig(t, cfg, opts...)
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config, opts ...Option) (*Server, *orchestrator.Orchestrator, *jobs.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	orch, err := orchestrator.New(cfg, store, logging.NewNop(), orchestrator.WithTranscriber(stubTranscriber{}))
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}
	srv, err := New(cfg, orch, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	return srv, orch, store
}

func uploadBody(t *testing.T, pdf, audio []byte, title string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if pdf != nil {
		part, err := mw.CreateFormFile("pdf_file", "book.pdf")
		if err != nil {
			t.Fatalf("create pdf part: %v", err)
		}
		if _, err := part.Write(pdf); err != nil {
			t.Fatalf("write pdf part: %v", err)
		}
	}
	if audio != nil {
		part, err := mw.CreateFormFile("audio_file", "book.mp3")
		if err != nil {
			t.Fatalf("create audio part: %v", err)
		}
		if _, err := part.Write(audio); err != nil {
			t.Fatalf("write audio part: %v", err)
		}
	}
	if title != "" {
		if err := mw.WriteField("title", title); err != nil {
			t.Fatalf("write title field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, srv *Server, pdf, audio []byte, title string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := uploadBody(t, pdf, audio, title)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleUpload(w, req)
	return w
}

func decodeJobID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected a job id in the upload response")
	}
	return resp.JobID
}

func cacheTranscript(t *testing.T, orch *orchestrator.Orchestrator, audio []byte) transcript.Transcript {
	t.Helper()
	tr := transcript.Normalize([]transcript.Segment{{
		Text:  "chapter one",
		Start: 0,
		End:   2.5,
		Words: []transcript.Word{
			{Word: "chapter", Start: 0, End: 1.1},
			{Word: "one", Start: 1.1, End: 2.5},
		},
	}})
	sum := sha256.Sum256(audio)
	identity := cas.Identity(hex.EncodeToString(sum[:]))
	if _, err := orch.Transcripts().Put(identity, tr); err != nil {
		t.Fatalf("seed transcript cache: %v", err)
	}
	return tr
}

func TestHandleUploadCreatesJob(t *testing.T) {
	srv, _, store := newTestServer(t)

	w := postUpload(t, srv, []byte("%PDF-1.4 demo"), []byte("audio-bytes"), "Dune")
	id := decodeJobID(t, w)

	job, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job.Status != jobs.StatusQueued {
		t.Fatalf("expected queued job, got %s", job.Status)
	}
	if job.Title != "Dune" {
		t.Fatalf("unexpected title: %q", job.Title)
	}
}

func TestHandleUploadValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := postUpload(t, srv, []byte("%PDF"), nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing audio, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "audio_file") {
		t.Fatalf("expected audio_file in error, got %s", w.Body.String())
	}

	w = postUpload(t, srv, nil, []byte("audio"), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing pdf, got %d", w.Code)
	}

	w = postUpload(t, srv, []byte{}, []byte("audio"), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty pdf, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "empty") {
		t.Fatalf("expected empty-file error, got %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/upload", nil)
	w = httptest.NewRecorder()
	srv.handleUpload(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("not a form"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	srv.handleUpload(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", w.Code)
	}
}

func TestHandleUploadEnforcesSizeCaps(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled())
	cfg.Uploads.MaxPDFMiB = 1
	cfg.Uploads.MaxAudioMiB = 1
	srv, _, store := newTestServerWithConfig(t, cfg)

	oversize := bytes.Repeat([]byte("x"), 1<<20+1)

	w := postUpload(t, srv, oversize, []byte("audio"), "")
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversize pdf, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pdf") {
		t.Fatalf("expected pdf mentioned in error, got %s", w.Body.String())
	}

	w = postUpload(t, srv, []byte("%PDF"), oversize, "")
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversize audio, got %d", w.Code)
	}

	// A giant unrecognized field still counts against the request cap.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, field := range []string{"pdf_file", "audio_file"} {
		part, err := mw.CreateFormFile(field, "small.bin")
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte("tiny")); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	junk, err := mw.CreateFormFile("extra", "junk.bin")
	if err != nil {
		t.Fatalf("create junk part: %v", err)
	}
	if _, err := junk.Write(bytes.Repeat([]byte("j"), 4<<20)); err != nil {
		t.Fatalf("write junk part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	srv.handleUpload(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversize request, got %d", w.Code)
	}

	all, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("rejected uploads must not create jobs, found %d", len(all))
	}
}

func TestHandleJobStatusShapes(t *testing.T) {
	srv, orch, _ := newTestServer(t)

	audio := []byte("narration-bytes")
	want := cacheTranscript(t, orch, audio)
	completedID := decodeJobID(t, postUpload(t, srv, []byte("%PDF one"), audio, "Dune"))
	queuedID := decodeJobID(t, postUpload(t, srv, []byte("%PDF two"), []byte("other-audio"), "Hyperion"))

	req := httptest.NewRequest(http.MethodGet, "/status/"+completedID, nil)
	w := httptest.NewRecorder()
	srv.handleJobStatus(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var completed api.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &completed); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if completed.Status != string(jobs.StatusCompleted) {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if completed.Title != "Dune" {
		t.Fatalf("unexpected title: %q", completed.Title)
	}
	if !strings.HasPrefix(completed.PDFURL, "/uploads/") || !strings.HasPrefix(completed.AudioURL, "/uploads/") {
		t.Fatalf("expected upload urls, got %q and %q", completed.PDFURL, completed.AudioURL)
	}
	if completed.Transcript == nil || len(completed.Transcript.Segments) != len(want.Segments) {
		t.Fatalf("expected cached transcript in response, got %+v", completed.Transcript)
	}

	req = httptest.NewRequest(http.MethodGet, "/status/"+queuedID, nil)
	w = httptest.NewRecorder()
	srv.handleJobStatus(w, req)
	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode queued status: %v", err)
	}
	if raw["status"] != string(jobs.StatusQueued) {
		t.Fatalf("expected queued, got %v", raw["status"])
	}
	for _, key := range []string{"pdf_url", "audio_url", "transcript", "error_msg"} {
		if _, found := raw[key]; found {
			t.Fatalf("queued status must not carry %q", key)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/status/no-such-job", nil)
	w = httptest.NewRecorder()
	srv.handleJobStatus(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status/", nil)
	w = httptest.NewRecorder()
	srv.handleJobStatus(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing id, got %d", w.Code)
	}
}

func TestHandleHistoryListsCompletedOnly(t *testing.T) {
	srv, orch, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	w := httptest.NewRecorder()
	srv.handleHistory(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", w.Body.String())
	}

	audio := []byte("finished-audio")
	cacheTranscript(t, orch, audio)
	completedID := decodeJobID(t, postUpload(t, srv, []byte("%PDF done"), audio, "Dune"))
	decodeJobID(t, postUpload(t, srv, []byte("%PDF pending"), []byte("pending-audio"), "Hyperion"))

	w = httptest.NewRecorder()
	srv.handleHistory(w, httptest.NewRequest(http.MethodGet, "/history", nil))
	var entries []api.HistoryEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 completed entry, got %d", len(entries))
	}
	if entries[0].ID != completedID || entries[0].Title != "Dune" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if !strings.HasPrefix(entries[0].PDFURL, "/uploads/") {
		t.Fatalf("expected upload url, got %q", entries[0].PDFURL)
	}
}

func TestHandleStoredFileServesUploads(t *testing.T) {
	srv, _, store := newTestServer(t)

	pdf := []byte("%PDF-1.4 static body")
	audio := []byte("0123456789abcdef")
	id := decodeJobID(t, postUpload(t, srv, pdf, audio, ""))
	job, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/uploads/"+job.PDFFile, nil)
	w := httptest.NewRecorder()
	srv.handleStoredFile(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), pdf) {
		t.Fatalf("pdf body mismatch: got %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/pdf") {
		t.Fatalf("unexpected content type %q", ct)
	}

	req = httptest.NewRequest(http.MethodGet, "/uploads/"+job.AudioFile, nil)
	req.Header.Set("Range", "bytes=0-3")
	w = httptest.NewRecorder()
	srv.handleStoredFile(w, req)
	if w.Code != http.StatusPartialContent {
		t.Fatalf("expected 206 for range request, got %d", w.Code)
	}
	if w.Body.String() != "0123" {
		t.Fatalf("unexpected range body %q", w.Body.String())
	}

	for _, path := range []string{"/uploads/", "/uploads/missing.pdf", "/uploads/../jobs.db"} {
		req = httptest.NewRequest(http.MethodGet, path, nil)
		w = httptest.NewRecorder()
		srv.handleStoredFile(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %q, got %d", path, w.Code)
		}
	}
}

func TestHandleJobsAndStats(t *testing.T) {
	srv, orch, _ := newTestServer(t)

	audio := []byte("done-audio")
	cacheTranscript(t, orch, audio)
	decodeJobID(t, postUpload(t, srv, []byte("%PDF a"), audio, "Done"))
	decodeJobID(t, postUpload(t, srv, []byte("%PDF b"), []byte("waiting-audio"), "Waiting"))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	w := httptest.NewRecorder()
	srv.handleJobs(w, req)
	var list api.JobListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(list.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list.Jobs))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed", nil)
	w = httptest.NewRecorder()
	srv.handleJobs(w, req)
	list = api.JobListResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode filtered jobs: %v", err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].Title != "Done" {
		t.Fatalf("unexpected filtered jobs: %+v", list.Jobs)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w = httptest.NewRecorder()
	srv.handleJobStats(w, req)
	var stats api.JobStatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Counts[string(jobs.StatusCompleted)] != 1 || stats.Counts[string(jobs.StatusQueued)] != 1 {
		t.Fatalf("unexpected counts: %+v", stats.Counts)
	}
}

func TestHandleDaemonStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	srv.handleDaemonStatus(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var fallback api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &fallback); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if fallback.Running {
		t.Fatal("expected stopped pipeline in fallback status")
	}

	srv, _, _ = newTestServer(t, WithStatusFunc(func(context.Context) api.DaemonStatus {
		return api.DaemonStatus{Running: true, PID: 42}
	}))
	w = httptest.NewRecorder()
	srv.handleDaemonStatus(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var provided api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &provided); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !provided.Running || provided.PID != 42 {
		t.Fatalf("expected daemon-provided status, got %+v", provided)
	}
}

func TestServerServesOverListener(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	base := "http://" + srv.Addr()
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read health body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var health api.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("unexpected health payload: %+v", health)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	uploadBuf, contentType := uploadBody(t, []byte("%PDF live"), []byte("live-audio"), "Live")
	resp, err = http.Post(base+"/upload", contentType, uploadBuf)
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read upload body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 upload, got %d: %s", resp.StatusCode, body)
	}
	var created api.UploadResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if created.JobID == "" {
		t.Fatal("expected job id from live upload")
	}
}
