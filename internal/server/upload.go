package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/orchestrator"
	"github.com/Bugaddr/audiolens/internal/services"
)

// Form fields beyond the two files stay tiny, so the aggregate body cap
// only needs headroom for multipart framing and the title.
const formOverheadBytes = 1 << 20

const maxTitleBytes = 1 << 10

var errPartTooLarge = errors.New("upload part exceeds size limit")

// uploadPart is one spooled multipart file, staged in the work directory
// until the orchestrator copies it into content storage.
type uploadPart struct {
	file *os.File
	name string
	size int64
}

func (p *uploadPart) discard() {
	if p == nil || p.file == nil {
		return
	}
	name := p.file.Name()
	_ = p.file.Close()
	_ = os.Remove(name)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxPDFBytes+s.maxAudioBytes+formOverheadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart form upload required")
		return
	}

	var (
		pdf   *uploadPart
		audio *uploadPart
		title string
	)
	defer func() {
		pdf.discard()
		audio.discard()
	}()

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the request size limit")
				return
			}
			s.writeError(w, http.StatusBadRequest, "malformed multipart form")
			return
		}

		switch part.FormName() {
		case "pdf_file":
			if pdf != nil {
				continue
			}
			pdf, err = s.spoolPart(part, s.maxPDFBytes)
			if err != nil {
				s.writeSpoolError(w, "pdf file", err)
				return
			}
		case "audio_file":
			if audio != nil {
				continue
			}
			audio, err = s.spoolPart(part, s.maxAudioBytes)
			if err != nil {
				s.writeSpoolError(w, "audio file", err)
				return
			}
		case "title":
			value, err := io.ReadAll(io.LimitReader(part, maxTitleBytes))
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "malformed multipart form")
				return
			}
			title = strings.TrimSpace(string(value))
		}
	}

	if pdf == nil {
		s.writeError(w, http.StatusBadRequest, "pdf_file field is required")
		return
	}
	if audio == nil {
		s.writeError(w, http.StatusBadRequest, "audio_file field is required")
		return
	}
	if pdf.size == 0 {
		s.writeError(w, http.StatusBadRequest, "pdf file is empty")
		return
	}
	if audio.size == 0 {
		s.writeError(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	job, err := s.orch.Submit(r.Context(), orchestrator.SubmitRequest{
		PDF:           pdf.file,
		PDFFilename:   pdf.name,
		Audio:         audio.file,
		AudioFilename: audio.name,
		Title:         title,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			s.writeError(w, http.StatusBadRequest, services.Reason(err))
			return
		}
		s.log().Error("upload submission failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	s.writeJSON(w, http.StatusOK, api.UploadResponse{JobID: job.ID})
}

// spoolPart streams one file field to a temp file, rejecting it as soon as
// the byte count crosses the per-field limit.
func (s *Server) spoolPart(part *multipart.Part, limit int64) (*uploadPart, error) {
	tmp, err := os.CreateTemp(s.workDir, ".upload-*.part")
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	n, err := io.Copy(tmp, io.LimitReader(part, limit+1))
	if err != nil {
		cleanup()
		return nil, err
	}
	if n > limit {
		cleanup()
		return nil, errPartTooLarge
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, err
	}
	return &uploadPart{file: tmp, name: part.FileName(), size: n}, nil
}

func (s *Server) writeSpoolError(w http.ResponseWriter, field string, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errPartTooLarge), errors.As(err, &maxErr):
		s.writeError(w, http.StatusRequestEntityTooLarge, field+" exceeds the upload size limit")
	default:
		s.log().Error("upload spool failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
	}
}
