package orchestrator_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/orchestrator"
	"github.com/Bugaddr/audiolens/internal/services"
	"github.com/Bugaddr/audiolens/internal/testsupport"
	"github.com/Bugaddr/audiolens/internal/transcriber"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

type fakeTranscriber struct {
	mu      sync.Mutex
	calls   int
	result  transcript.Transcript
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, progress transcriber.ProgressFunc) (transcript.Transcript, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	started := f.started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if progress != nil {
		progress(transcriber.StageTranscribing, 10)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return transcript.Transcript{}, ctx.Err()
		}
	}
	if f.err != nil {
		return transcript.Transcript{}, f.err
	}
	return f.result, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu          sync.Mutex
	completions []string
	failures    []string
}

func (f *fakeNotifier) NotifyJobCompleted(_ context.Context, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, title)
	return nil
}

func (f *fakeNotifier) NotifyJobFailed(_ context.Context, title, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, title+": "+reason)
	return nil
}

func (f *fakeNotifier) TestNotification(context.Context) error { return nil }

func (f *fakeNotifier) completed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completions...)
}

func (f *fakeNotifier) failed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.failures...)
}

type fakeRepairer struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeRepairer) Repair(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return f.err
}

func (f *fakeRepairer) repaired() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func sampleTranscript() transcript.Transcript {
	return transcript.Normalize([]transcript.Segment{
		{
			Text:  "chapter one",
			Start: 0,
			End:   2.5,
			Words: []transcript.Word{
				{Word: "chapter", Start: 0, End: 1.2},
				{Word: "one", Start: 1.3, End: 2.5},
			},
		},
	})
}

func identityOf(content string) cas.Identity {
	sum := sha256.Sum256([]byte(content))
	return cas.Identity(hex.EncodeToString(sum[:]))
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, opts ...orchestrator.Option) (*orchestrator.Orchestrator, *jobs.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	orch, err := orchestrator.New(cfg, store, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return orch, store
}

func submitPair(t *testing.T, orch *orchestrator.Orchestrator, title, pdfBody, audioBody string) *jobs.Job {
	t.Helper()
	job, err := orch.Submit(context.Background(), orchestrator.SubmitRequest{
		PDF:           strings.NewReader(pdfBody),
		PDFFilename:   "book.pdf",
		Audio:         strings.NewReader(audioBody),
		AudioFilename: "book.mp3",
		Title:         title,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return job
}

func waitForStatus(t *testing.T, store *jobs.Store, id string, want jobs.Status) *jobs.Job {
	t.Helper()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		default:
		}
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if job.Status == want {
			return job
		}
		if job.Status.IsTerminal() {
			t.Fatalf("job settled at %s (error: %q) while waiting for %s", job.Status, job.ErrorMessage, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubmitCreatesQueuedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled())
	engine := &fakeTranscriber{result: sampleTranscript()}
	orch, _ := newTestOrchestrator(t, cfg, orchestrator.WithTranscriber(engine), orchestrator.WithNotifier(&fakeNotifier{}))

	job := submitPair(t, orch, "", "pdf-bytes", "audio-bytes")
	if job.Status != jobs.StatusQueued {
		t.Fatalf("expected queued, got %s", job.Status)
	}
	if job.Title != "Book" {
		t.Fatalf("expected title derived from filename, got %q", job.Title)
	}
	if job.PDFIdentity != identityOf("pdf-bytes").String() {
		t.Fatalf("unexpected pdf identity %s", job.PDFIdentity)
	}
	if job.AudioIdentity != identityOf("audio-bytes").String() {
		t.Fatalf("unexpected audio identity %s", job.AudioIdentity)
	}
	if job.PDFFile != job.PDFIdentity+".pdf" || job.AudioFile != job.AudioIdentity+".mp3" {
		t.Fatalf("unexpected storage names %q / %q", job.PDFFile, job.AudioFile)
	}
	if engine.callCount() != 0 {
		t.Fatalf("model must not run at submit time")
	}

	path, err := orch.Uploads().Resolve(identityOf("audio-bytes"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stored audio missing: %v", err)
	}

	// Resubmitting identical bytes lands on the same storage entries.
	second := submitPair(t, orch, "Explicit Title", "pdf-bytes", "audio-bytes")
	if second.ID == job.ID {
		t.Fatal("expected a fresh job per submission")
	}
	if second.PDFIdentity != job.PDFIdentity || second.AudioIdentity != job.AudioIdentity {
		t.Fatal("expected identical bytes to share identities")
	}
	if second.Title != "Explicit Title" {
		t.Fatalf("explicit title should win, got %q", second.Title)
	}
	stats, err := orch.Uploads().Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 2 {
		t.Fatalf("expected 2 stored files after duplicate submit, got %d", stats.Entries)
	}
}

func TestSubmitValidatesInputs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled())
	orch, store := newTestOrchestrator(t, cfg, orchestrator.WithTranscriber(&fakeTranscriber{}), orchestrator.WithNotifier(&fakeNotifier{}))

	_, err := orch.Submit(context.Background(), orchestrator.SubmitRequest{Audio: strings.NewReader("a")})
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing pdf, got %v", err)
	}
	_, err = orch.Submit(context.Background(), orchestrator.SubmitRequest{PDF: strings.NewReader("p")})
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing audio, got %v", err)
	}
	_, err = orch.Submit(context.Background(), orchestrator.SubmitRequest{
		PDF:   strings.NewReader("p"),
		Audio: strings.NewReader(""),
	})
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty audio, got %v", err)
	}

	all, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("rejected submissions must not create jobs, found %d", len(all))
	}
}

func TestSubmitCompletesFromCacheWithoutModel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled())
	engine := &fakeTranscriber{result: sampleTranscript()}
	orch, store := newTestOrchestrator(t, cfg, orchestrator.WithTranscriber(engine), orchestrator.WithNotifier(&fakeNotifier{}))

	if _, err := orch.Transcripts().Put(identityOf("audio-bytes"), sampleTranscript()); err != nil {
		t.Fatalf("cache Put failed: %v", err)
	}

	// The orchestrator is not running: a cache hit must finish the job
	// synchronously, without a worker.
	job := submitPair(t, orch, "Cached", "pdf-bytes", "audio-bytes")
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed from cache, got %s", job.Status)
	}
	if engine.callCount() != 0 {
		t.Fatal("cached audio must not reach the model")
	}

	stored, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != jobs.StatusCompleted || stored.ProgressPercent != 100 {
		t.Fatalf("expected persisted completion, got %s at %.0f%%", stored.Status, stored.ProgressPercent)
	}
}

func TestRunTranscribesCachesAndNotifies(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled(), testsupport.WithWorkers(1))
	engine := &fakeTranscriber{result: sampleTranscript()}
	notifier := &fakeNotifier{}
	orch, store := newTestOrchestrator(t, cfg, orchestrator.WithTranscriber(engine), orchestrator.WithNotifier(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	job := submitPair(t, orch, "Dune", "pdf-a", "audio-a")
	final := waitForStatus(t, store, job.ID, jobs.StatusCompleted)
	if final.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress, got %.0f", final.ProgressPercent)
	}
	if engine.callCount() != 1 {
		t.Fatalf("expected exactly one model run, got %d", engine.callCount())
	}

	tr, ok, err := orch.Transcripts().Get(identityOf("audio-a"))
	if err != nil {
		t.Fatalf("cache Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected transcript cached after run")
	}
	if len(tr.Segments) != 1 || tr.Segments[0].Text != "chapter one" {
		t.Fatalf("unexpected cached transcript: %+v", tr)
	}

	deadline := time.After(10 * time.Second)
	for len(notifier.completed()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected completion notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if got := notifier.completed(); got[0] != "Dune" {
		t.Fatalf("expected notification for Dune, got %q", got[0])
	}
}

func TestRunMarksErrorAndNotifies(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled(), testsupport.WithWorkers(1))
	engine := &fakeTranscriber{err: services.Wrap(services.ErrModel, "transcriber", "whisperx", "model exploded", nil)}
	notifier := &fakeNotifier{}
	orch, store := newTestOrchestrator(t, cfg, orchestrator.WithTranscriber(engine), orchestrator.WithNotifier(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	job := submitPair(t, orch, "Broken", "pdf-b", "audio-b")
	final := waitForStatus(t, store, job.ID, jobs.StatusError)
	if !strings.Contains(final.ErrorMessage, "model exploded") {
		t.Fatalf("expected cause in error message, got %q", final.ErrorMessage)
	}

	if _, ok, err := orch.Transcripts().Get(identityOf("audio-b")); err != nil {
		t.Fatalf("cache Get failed: %v", err)
	} else if ok {
		t.Fatal("failed runs must not populate the cache")
	}

	history, err := store.History(context.Background())
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("errored jobs must stay out of history, got %d", len(history))
	}

	deadline := time.After(10 * time.Second)
	for len(notifier.failed()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected failure notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if got := notifier.failed(); !strings.Contains(got[0], "Broken") {
		t.Fatalf("expected failure notification for Broken, got %q", got[0])
	}
}

func TestDedupCoalescesIdenticalAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled(), testsupport.WithWorkers(2))
	gate := make(chan struct{})
	engine := &fakeTranscriber{result: sampleTranscript(), gate: gate, started: make(chan struct{}, 4)}
	orch, store := newTestOrchestrator(t, cfg, orchestrator.WithTranscriber(engine), orchestrator.WithNotifier(&fakeNotifier{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	first := submitPair(t, orch, "Copy A", "pdf-one", "shared-audio")
	second := submitPair(t, orch, "Copy B", "pdf-two", "shared-audio")

	select {
	case <-engine.started:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for model start")
	}
	close(gate)

	waitForStatus(t, store, first.ID, jobs.StatusCompleted)
	waitForStatus(t, store, second.ID, jobs.StatusCompleted)

	if engine.callCount() != 1 {
		t.Fatalf("identical audio must transcribe once, got %d runs", engine.callCount())
	}
}

func TestRepairRunsBeforeTranscription(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	engine := &fakeTranscriber{result: sampleTranscript()}
	repairer := &fakeRepairer{}
	orch, store := newTestOrchestrator(t, cfg,
		orchestrator.WithTranscriber(engine),
		orchestrator.WithNotifier(&fakeNotifier{}),
		orchestrator.WithRepairer(repairer),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	job := submitPair(t, orch, "Scanned", "pdf-fresh", "audio-fresh")
	if !job.RepairPDF {
		t.Fatal("fresh pdf with repair enabled should be flagged")
	}

	final := waitForStatus(t, store, job.ID, jobs.StatusCompleted)
	if final.RepairPDF {
		t.Fatal("repair flag should clear after repair")
	}

	pdfPath, err := orch.Uploads().Resolve(identityOf("pdf-fresh"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := repairer.repaired(); len(got) != 1 || got[0] != pdfPath {
		t.Fatalf("expected one repair of %s, got %v", pdfPath, got)
	}
	if engine.callCount() != 1 {
		t.Fatalf("expected one model run after repair, got %d", engine.callCount())
	}

	// The same pdf arriving again is already stored, so no second repair.
	again := submitPair(t, orch, "Scanned Again", "pdf-fresh", "audio-later")
	if again.RepairPDF {
		t.Fatal("known pdf bytes must not be flagged for repair")
	}
}

func TestRepairFailureFailsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	engine := &fakeTranscriber{result: sampleTranscript()}
	repairer := &fakeRepairer{err: services.Wrap(services.ErrRepair, "pdfrepair", "qpdf", "structure damaged", nil)}
	orch, store := newTestOrchestrator(t, cfg,
		orchestrator.WithTranscriber(engine),
		orchestrator.WithNotifier(&fakeNotifier{}),
		orchestrator.WithRepairer(repairer),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	job := submitPair(t, orch, "Hopeless", "pdf-broken", "audio-c")
	final := waitForStatus(t, store, job.ID, jobs.StatusError)
	if !strings.Contains(final.ErrorMessage, "structure damaged") {
		t.Fatalf("expected repair cause in error, got %q", final.ErrorMessage)
	}
	if engine.callCount() != 0 {
		t.Fatal("failed repair must not reach the model")
	}
}

func TestCachedAudioWithPendingRepairSkipsModel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	engine := &fakeTranscriber{result: sampleTranscript()}
	repairer := &fakeRepairer{}
	orch, store := newTestOrchestrator(t, cfg,
		orchestrator.WithTranscriber(engine),
		orchestrator.WithNotifier(&fakeNotifier{}),
		orchestrator.WithRepairer(repairer),
	)

	if _, err := orch.Transcripts().Put(identityOf("audio-known"), sampleTranscript()); err != nil {
		t.Fatalf("cache Put failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	job := submitPair(t, orch, "Cached Repair", "pdf-new", "audio-known")
	if job.Status != jobs.StatusQueued {
		t.Fatalf("pending repair should defer completion, got %s", job.Status)
	}

	seen := make(map[jobs.Status]bool)
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		default:
		}
		current, err := store.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		seen[current.Status] = true
		if current.Status == jobs.StatusCompleted {
			break
		}
		if current.Status == jobs.StatusError {
			t.Fatalf("job failed: %s", current.ErrorMessage)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if seen[jobs.StatusTranscribing] {
		t.Fatal("cached audio must never enter transcribing")
	}
	if engine.callCount() != 0 {
		t.Fatal("cached audio must not reach the model")
	}
	if len(repairer.repaired()) != 1 {
		t.Fatalf("expected exactly one repair, got %d", len(repairer.repaired()))
	}
}

func TestRestartRequeuesInterruptedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled(), testsupport.WithWorkers(1))
	gate := make(chan struct{})
	engine := &fakeTranscriber{result: sampleTranscript(), gate: gate, started: make(chan struct{}, 1)}
	orch, store := newTestOrchestrator(t, cfg, orchestrator.WithTranscriber(engine), orchestrator.WithNotifier(&fakeNotifier{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := submitPair(t, orch, "Interrupted", "pdf-d", "audio-d")
	select {
	case <-engine.started:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for model start")
	}

	orch.Stop()

	stuck, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stuck.Status != jobs.StatusTranscribing {
		t.Fatalf("interrupted job should stay transcribing, got %s", stuck.Status)
	}

	// A fresh process over the same store requeues and finishes the job.
	replacement := &fakeTranscriber{result: sampleTranscript()}
	orch2, err := orchestrator.New(cfg, store, logging.NewNop(),
		orchestrator.WithTranscriber(replacement),
		orchestrator.WithNotifier(&fakeNotifier{}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	if err := orch2.Start(ctx2); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	t.Cleanup(orch2.Stop)

	waitForStatus(t, store, job.ID, jobs.StatusCompleted)
	if replacement.callCount() != 1 {
		t.Fatalf("expected requeued job to transcribe once, got %d", replacement.callCount())
	}
}

func TestStartTwiceFails(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairDisabled())
	orch, _ := newTestOrchestrator(t, cfg, orchestrator.WithTranscriber(&fakeTranscriber{}), orchestrator.WithNotifier(&fakeNotifier{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := orch.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}
	orch.Stop()
	orch.Stop()

	status := orch.Status(context.Background())
	if status.Running {
		t.Fatal("expected stopped status")
	}
}
