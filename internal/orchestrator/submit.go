package orchestrator

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/services"
	"github.com/Bugaddr/audiolens/internal/textutil"
)

// SubmitRequest carries one PDF and audio pair into the pipeline. Filenames
// are advisory: extensions survive into storage names and the audio filename
// seeds the display title when Title is empty.
type SubmitRequest struct {
	PDF           io.Reader
	PDFFilename   string
	Audio         io.Reader
	AudioFilename string
	Title         string
}

// Submit stores both uploads and records a job for the pair. Identical bytes
// land on their existing storage entries, so resubmitting a pair is cheap.
// When a cached transcript already covers the audio and the PDF needs no
// repair, the job completes before Submit returns and never reaches a
// worker. Validation failures surface before any job row is written.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*jobs.Job, error) {
	if req.PDF == nil {
		return nil, services.Wrap(services.ErrInvalidInput, "orchestrator", "submit", "missing pdf file", nil)
	}
	if req.Audio == nil {
		return nil, services.Wrap(services.ErrInvalidInput, "orchestrator", "submit", "missing audio file", nil)
	}

	pdfExt := extensionOrDefault(req.PDFFilename, ".pdf")
	pdfIdentity, pdfStored, err := o.uploads.Put(req.PDF, pdfExt)
	if err != nil {
		return nil, err
	}
	audioExt := extensionOrDefault(req.AudioFilename, ".mp3")
	audioIdentity, _, err := o.uploads.Put(req.Audio, audioExt)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = textutil.DeriveTitle(req.AudioFilename)
	}

	repairPDF := pdfStored && o.cfg.Uploads.PDFRepairEnabled && o.repairer != nil
	job, err := o.store.Create(ctx, &jobs.Job{
		Title:         title,
		PDFIdentity:   pdfIdentity.String(),
		AudioIdentity: audioIdentity.String(),
		PDFFile:       filepath.Base(o.uploads.PathFor(pdfIdentity, pdfExt)),
		AudioFile:     filepath.Base(o.uploads.PathFor(audioIdentity, audioExt)),
		RepairPDF:     repairPDF,
	})
	if err != nil {
		return nil, err
	}

	logger := logging.WithContext(services.WithJobID(ctx, job.ID), o.logger)
	logger.Info("job submitted",
		logging.String("title", job.Title),
		logging.String(logging.FieldIdentity, job.AudioIdentity),
		logging.Bool("pdf_stored", pdfStored),
		logging.Bool("repair_pdf", repairPDF),
	)

	// Fast path: a cached transcript finishes the job synchronously. A job
	// still waiting on PDF repair goes through the dispatcher instead; the
	// cache recheck there keeps it clear of the model.
	if !repairPDF {
		if _, ok, cacheErr := o.transcripts.Get(audioIdentity); cacheErr != nil {
			logger.Warn("transcript cache read failed", logging.Error(cacheErr))
		} else if ok {
			if err := o.store.MarkCompleted(ctx, job.ID); err != nil {
				logger.Warn("cached completion failed, leaving job queued", logging.Error(err))
				o.Kick()
				return job, nil
			}
			logger.Info("job completed from transcript cache")
			return o.store.GetByID(ctx, job.ID)
		}
	}

	o.Kick()
	return job, nil
}

// extensionOrDefault pulls the extension off an uploaded filename, falling
// back when the client sent none.
func extensionOrDefault(name, fallback string) string {
	ext := filepath.Ext(strings.TrimSpace(name))
	if ext == "" || ext == "." {
		return fallback
	}
	return ext
}
