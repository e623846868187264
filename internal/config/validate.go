package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscriber(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateUploads(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q must be host:port: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateTranscriber() error {
	if strings.TrimSpace(c.Transcriber.Model) == "" {
		return errors.New("transcriber.model must be set")
	}
	if c.Transcriber.ChunkDurationSeconds <= 0 {
		return errors.New("transcriber.chunk_duration_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.workers":              c.Workflow.Workers,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateUploads() error {
	return ensurePositiveMap(map[string]int{
		"uploads.max_pdf_mib":   c.Uploads.MaxPDFMiB,
		"uploads.max_audio_mib": c.Uploads.MaxAudioMiB,
	})
}

func (c *Config) validateStore() error {
	if c.Store.MaxGiB <= 0 {
		return errors.New("store.max_gib must be positive")
	}
	if c.Store.MinFreeGiB < 0 {
		return errors.New("store.min_free_gib must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
