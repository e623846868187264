package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/orchestrator"
	"github.com/Bugaddr/audiolens/internal/preflight"
	"github.com/Bugaddr/audiolens/internal/server"
)

// Daemon coordinates background processing and enforces single-instance
// execution via a lock file in the log directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *jobs.Store
	orch   *orchestrator.Orchestrator
	srv    *server.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon over an open job store, an orchestrator, and an
// unstarted HTTP server.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, orch *orchestrator.Orchestrator, srv *server.Server) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil || srv == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and server")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "audiolens.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		orch:     orch,
		srv:      srv,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, prunes the upload store to its
// configured budget, and launches the orchestrator and HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another audiolens daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.pruneUploads(runCtx); err != nil {
		d.logger.Warn("upload store prune failed", logging.Error(err))
	}

	if err := d.orch.Start(runCtx); err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if err := d.srv.Start(runCtx); err != nil {
		d.orch.Stop()
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("audiolens daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.srv.Addr()),
	)
	return nil
}

// Stop halts the HTTP server and background processing and releases the
// instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.srv.Stop()
	d.orch.Stop()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("audiolens daemon stopped")
}

// Close stops the daemon. The job store belongs to the caller and stays
// open.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether Start has completed without a matching Stop.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status aggregates runtime information for the /api/status endpoint and
// the CLI status command.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		JobDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
		Pipeline:     api.FromStatusSummary(d.orch.Status(ctx)),
	}
	for _, dep := range preflight.CheckSystemDeps(d.cfg) {
		status.Dependencies = append(status.Dependencies, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return status
}

// pruneUploads trims the upload store to the configured size budget while
// protecting every identity a job record still references.
func (d *Daemon) pruneUploads(ctx context.Context) error {
	if d.cfg.Store.MaxGiB <= 0 && d.cfg.Store.MinFreeGiB <= 0 {
		return nil
	}
	referenced, err := d.store.ReferencedIdentities(ctx)
	if err != nil {
		return fmt.Errorf("collect referenced identities: %w", err)
	}
	keep := make(map[cas.Identity]struct{}, len(referenced))
	for identity := range referenced {
		keep[cas.Identity(identity)] = struct{}{}
	}
	return d.orch.Uploads().Prune(ctx, keep)
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
