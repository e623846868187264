// Package transcriptcache persists one normalized transcript per unique
// audio file, keyed by content identity.
//
// A cached transcript is immutable: once written for an identity it is never
// regenerated, which is what makes re-uploads of known audio complete without
// touching the speech model.
package transcriptcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/Bugaddr/audiolens/internal/cas"
	"github.com/Bugaddr/audiolens/internal/fileutil"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/transcript"
)

// Cache provides access to the transcript store on disk.
type Cache struct {
	dir    string
	logger *slog.Logger
}

// Stats summarizes cache contents for the CLI.
type Stats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
}

// New initialises a cache rooted at dir.
func New(dir string, logger *slog.Logger) (*Cache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("transcript cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript cache dir: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{dir: dir, logger: logging.NewComponentLogger(logger, "transcriptcache")}, nil
}

// Dir exposes the backing directory for inspection.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Path returns the file a transcript for identity occupies, present or not.
func (c *Cache) Path(identity cas.Identity) string {
	return filepath.Join(c.dir, string(identity)+".json")
}

// Get returns the cached transcript for identity when present.
func (c *Cache) Get(identity cas.Identity) (transcript.Transcript, bool, error) {
	if c == nil {
		return transcript.Transcript{}, false, errors.New("transcript cache unavailable")
	}
	if !identity.Valid() {
		return transcript.Transcript{}, false, fmt.Errorf("malformed identity %q", identity)
	}
	data, err := os.ReadFile(c.Path(identity))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return transcript.Transcript{}, false, nil
		}
		return transcript.Transcript{}, false, fmt.Errorf("read cached transcript: %w", err)
	}
	var tr transcript.Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return transcript.Transcript{}, false, fmt.Errorf("decode cached transcript: %w", err)
	}
	return tr, true, nil
}

// Put writes the transcript for identity atomically and returns its path.
// Existing entries are overwritten with identical content by construction, so
// concurrent writers for one identity are harmless.
func (c *Cache) Put(identity cas.Identity, tr transcript.Transcript) (string, error) {
	if c == nil {
		return "", errors.New("transcript cache unavailable")
	}
	if !identity.Valid() {
		return "", fmt.Errorf("malformed identity %q", identity)
	}
	data, err := json.Marshal(tr)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure transcript cache dir: %w", err)
	}
	path := c.Path(identity)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	c.logger.Debug("transcript cached",
		logging.String(logging.FieldIdentity, string(identity)),
		logging.Int("segments", len(tr.Segments)),
	)
	return path, nil
}

// Remove deletes the cached transcript for identity if present.
func (c *Cache) Remove(identity cas.Identity) error {
	if c == nil {
		return errors.New("transcript cache unavailable")
	}
	if err := os.Remove(c.Path(identity)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cached transcript: %w", err)
	}
	return nil
}

// Clear removes every cached transcript and reports how many were deleted.
func (c *Cache) Clear() (int, error) {
	if c == nil {
		return 0, errors.New("transcript cache unavailable")
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("list transcript cache: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove %q: %w", entry.Name(), err)
		}
		removed++
	}
	c.logger.Info("transcript cache cleared", logging.Int("removed", removed))
	return removed, nil
}

// Stats reports entry count and total size.
func (c *Cache) Stats() (Stats, error) {
	var s Stats
	if c == nil {
		return s, errors.New("transcript cache unavailable")
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("list transcript cache: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		s.Entries++
		s.TotalBytes += info.Size()
	}
	return s, nil
}
