package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Bugaddr/audiolens/internal/api"
)

// UploadRequest names the local files for one submission.
type UploadRequest struct {
	PDFPath   string
	AudioPath string
	Title     string
}

// Upload submits a PDF and audio pair and returns the assigned job id. The
// files are streamed through the request body as they are read.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (string, error) {
	pdf, err := os.Open(req.PDFPath)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer pdf.Close()
	audio, err := os.Open(req.AudioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer audio.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, pdf, audio, strings.TrimSpace(req.Title)))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}
	var created api.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if created.JobID == "" {
		return "", fmt.Errorf("daemon accepted the upload but returned no job id")
	}
	return created.JobID, nil
}

func writeUploadForm(form *multipart.Writer, pdf, audio *os.File, title string) error {
	pdfPart, err := form.CreateFormFile("pdf_file", filepath.Base(pdf.Name()))
	if err != nil {
		return fmt.Errorf("create pdf part: %w", err)
	}
	if _, err := io.Copy(pdfPart, pdf); err != nil {
		return fmt.Errorf("stream pdf: %w", err)
	}
	audioPart, err := form.CreateFormFile("audio_file", filepath.Base(audio.Name()))
	if err != nil {
		return fmt.Errorf("create audio part: %w", err)
	}
	if _, err := io.Copy(audioPart, audio); err != nil {
		return fmt.Errorf("stream audio: %w", err)
	}
	if title != "" {
		if err := form.WriteField("title", title); err != nil {
			return fmt.Errorf("write title: %w", err)
		}
	}
	return form.Close()
}
