package orchestrator

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/notifications"
	"github.com/Bugaddr/audiolens/internal/pdfrepair"
	"github.com/Bugaddr/audiolens/internal/transcriber"
	"github.com/Bugaddr/audiolens/internal/transcriptcache"
)

// Repairer rewrites a stored PDF in place so that damaged files render.
// *pdfrepair.Service is the production implementation.
type Repairer interface {
	Repair(ctx context.Context, path string) error
}

// Orchestrator owns the upload pipeline: content-addressed storage for
// uploads, the transcript cache, and the background workers that move jobs
// from queued to a terminal status.
type Orchestrator struct {
	cfg         *config.Config
	store       *jobs.Store
	uploads     *cas.Store
	transcripts *transcriptcache.Cache
	engine      transcriber.Transcriber
	repairer    Repairer
	notifier    notifications.Service
	logger      *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	workerCount        int

	inflight *inflightTable
	kick     chan struct{}

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *jobs.Job
	active  map[string]struct{}
}

// Option overrides a pipeline collaborator, used in tests.
type Option func(*Orchestrator)

// WithTranscriber replaces the WhisperX engine.
func WithTranscriber(engine transcriber.Transcriber) Option {
	return func(o *Orchestrator) { o.engine = engine }
}

// WithNotifier replaces the ntfy notifier.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) { o.notifier = notifier }
}

// WithRepairer replaces the qpdf repair service. Passing nil disables repair
// even for jobs flagged at submit time.
func WithRepairer(repairer Repairer) Option {
	return func(o *Orchestrator) { o.repairer = repairer }
}

// New constructs the orchestrator and its default collaborators from
// configuration. The job store is shared with the caller; upload and
// transcript storage directories are created on construction.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	uploads, err := cas.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	transcripts, err := transcriptcache.New(cfg.Paths.TranscriptCacheDir, logger)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	o := &Orchestrator{
		cfg:                cfg,
		store:              store,
		uploads:            uploads,
		transcripts:        transcripts,
		engine:             transcriber.NewWhisperX(cfg, logger),
		repairer:           pdfrepair.New(cfg.QPDFBinary(), logger),
		notifier:           notifications.NewService(cfg),
		logger:             logging.NewComponentLogger(logger, "orchestrator"),
		pollInterval:       time.Duration(cfg.Workflow.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		workerCount:        workers,
		inflight:           newInflightTable(),
		kick:               make(chan struct{}, 1),
		active:             make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Uploads exposes the content-addressed upload store for serving and
// maintenance commands.
func (o *Orchestrator) Uploads() *cas.Store { return o.uploads }

// Transcripts exposes the transcript cache.
func (o *Orchestrator) Transcripts() *transcriptcache.Cache { return o.transcripts }

// Store exposes the job store backing this orchestrator.
func (o *Orchestrator) Store() *jobs.Store { return o.store }

// Kick nudges the dispatcher without waiting for the next poll tick.
func (o *Orchestrator) Kick() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// tryAcquire reserves a job ID for a worker so the dispatcher never hands
// the same queued job to two workers. Claiming in the database happens later
// in the pipeline, after the cache recheck.
func (o *Orchestrator) tryAcquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[id]; ok {
		return false
	}
	o.active[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}
