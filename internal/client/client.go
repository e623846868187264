package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/config"
)

// APIError carries the daemon's error payload alongside the HTTP status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is the daemon saying a resource is unknown.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the given base URL. A bare host:port is assumed
// to be plain HTTP. Request lifetimes are bounded by caller contexts, not a
// client-wide timeout, so long uploads are not cut off.
func New(baseURL string) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed != "" && !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	return &Client{
		baseURL: trimmed,
		http:    &http.Client{},
	}
}

// NewFromConfig points the client at the configured bind address.
func NewFromConfig(cfg *config.Config) *Client {
	if cfg == nil {
		return New("")
	}
	return New(cfg.Paths.APIBind)
}

// BaseURL reports the normalized daemon address.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) error {
	var resp api.HealthResponse
	if err := c.getJSON(ctx, "/health", &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("unexpected health payload %q", resp.Status)
	}
	return nil
}

// Status fetches the polling payload for one job.
func (c *Client) Status(ctx context.Context, jobID string) (api.StatusResponse, error) {
	var resp api.StatusResponse
	err := c.getJSON(ctx, "/status/"+url.PathEscape(jobID), &resp)
	return resp, err
}

// History lists completed jobs, newest first.
func (c *Client) History(ctx context.Context) ([]api.HistoryEntry, error) {
	var entries []api.HistoryEntry
	err := c.getJSON(ctx, "/history", &entries)
	return entries, err
}

// DaemonStatus fetches daemon runtime information.
func (c *Client) DaemonStatus(ctx context.Context) (api.DaemonStatus, error) {
	var resp api.DaemonStatus
	err := c.getJSON(ctx, "/api/status", &resp)
	return resp, err
}

// Jobs lists job records, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, statuses ...string) ([]api.JobSummary, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			trimmed := strings.TrimSpace(status)
			if trimmed == "" {
				continue
			}
			values.Add("status", trimmed)
		}
		if encoded := values.Encode(); encoded != "" {
			path += "?" + encoded
		}
	}
	var resp api.JobListResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Stats fetches job counts keyed by status.
func (c *Client) Stats(ctx context.Context) (map[string]int, error) {
	var resp api.JobStatsResponse
	if err := c.getJSON(ctx, "/api/stats", &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	message := strings.TrimSpace(string(body))
	var payload api.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
