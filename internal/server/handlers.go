package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/services"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/status/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	job, err := s.orch.Store().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var tr *transcript.Transcript
	if job.Status == jobs.StatusCompleted {
		cached, ok, err := s.orch.Transcripts().Get(cas.Identity(job.AudioIdentity))
		switch {
		case err != nil:
			s.log().Warn("transcript cache read failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
		case ok:
			tr = &cached
		}
	}
	s.writeJSON(w, http.StatusOK, api.StatusResponseForJob(job, tr))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries, err := s.jobSvc.History(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []api.HistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

// handleStoredFile serves content-addressed uploads. Names never contain
// separators, so anything with path structure is rejected outright.
func (s *Server) handleStoredFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/uploads/")
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	path := filepath.Join(s.orch.Uploads().Root(), name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	// ServeFile handles range requests and conditional headers for audio
	// seeking in the browser.
	http.ServeFile(w, r, path)
}

func (s *Server) handleDaemonStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload api.DaemonStatus
	if s.status != nil {
		payload = s.status(r.Context())
	} else {
		payload.Pipeline = api.FromStatusSummary(s.orch.Status(r.Context()))
		payload.Running = payload.Pipeline.Running
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []jobs.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		statuses = append(statuses, jobs.Status(trimmed))
	}

	records, err := s.jobSvc.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: records})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	counts, err := s.jobSvc.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobStatsResponse{Counts: counts})
}
