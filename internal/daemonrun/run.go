// Package daemonrun wires configuration, logging, storage, and the daemon
// into the foreground serve process.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"log/slog"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/daemon"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/orchestrator"
	"github.com/Bugaddr/audiolens/internal/preflight"
	"github.com/Bugaddr/audiolens/internal/server"
)

// Options configures serve-process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the audiolens daemon and blocks until the context is cancelled
// or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "audiolens.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	orch, err := orchestrator.New(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	var d *daemon.Daemon
	srv, err := server.New(cfg, orch, logger, server.WithStatusFunc(func(ctx context.Context) api.DaemonStatus {
		return d.Status(ctx)
	}))
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	d, err = daemon.New(cfg, store, logger, orch, srv)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("audiolens daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	args := []any{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		key := strings.ToLower(strings.ReplaceAll(dep.Name, " ", "_")) + "_available"
		args = append(args, logging.Bool(key, dep.Available))
	}
	logger.Info("dependency snapshot", args...)
}
