package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/orchestrator"
	"github.com/Bugaddr/audiolens/internal/services"
)

// StatusFunc supplies the daemon status payload served on /api/status. The
// daemon installs one so the endpoint can report lock and dependency state
// the server cannot see on its own.
type StatusFunc func(ctx context.Context) api.DaemonStatus

// Server serves the upload, polling, and static file endpoints.
type Server struct {
	bind    string
	logger  *slog.Logger
	orch    *orchestrator.Orchestrator
	jobSvc  *api.JobService
	status  StatusFunc
	workDir string

	maxPDFBytes   int64
	maxAudioBytes int64

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// Option adjusts optional server collaborators.
type Option func(*Server)

// WithStatusFunc wires the daemon status provider for /api/status.
func WithStatusFunc(fn StatusFunc) Option {
	return func(s *Server) {
		s.status = fn
	}
}

// New builds a server bound to the configured address. The orchestrator
// provides upload intake and the stores the read endpoints serve from.
func New(cfg *config.Config, orch *orchestrator.Orchestrator, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server requires configuration")
	}
	if orch == nil {
		return nil, errors.New("server requires an orchestrator")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("server requires a bind address")
	}

	workDir := strings.TrimSpace(cfg.Paths.WorkDir)
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	srv := &Server{
		bind:          bind,
		logger:        logger,
		orch:          orch,
		jobSvc:        api.NewJobService(orch.Store()),
		workDir:       workDir,
		maxPDFBytes:   int64(cfg.Uploads.MaxPDFMiB) << 20,
		maxAudioBytes: int64(cfg.Uploads.MaxAudioMiB) << 20,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(srv)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", srv.handleUpload)
	mux.HandleFunc("/status/", srv.handleJobStatus)
	mux.HandleFunc("/history", srv.handleHistory)
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/uploads/", srv.handleStoredFile)
	mux.HandleFunc("/api/status", srv.handleDaemonStatus)
	mux.HandleFunc("/api/jobs", srv.handleJobs)
	mux.HandleFunc("/api/stats", srv.handleJobStats)

	srv.handler = srv.withRequestID(mux)
	return srv, nil
}

// Start binds the listener and serves until ctx is cancelled. A stopped
// server can be started again.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	// Uploads and audio range requests are long-lived transfers, so only
	// header and idle deadlines apply.
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	httpServer := s.server
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// withRequestID tags every request with an id clients can quote back.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
