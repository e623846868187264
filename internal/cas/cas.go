package cas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/Bugaddr/audiolens/internal/config"
	"github.com/Bugaddr/audiolens/internal/logging"
	"github.com/Bugaddr/audiolens/internal/services"
)

// Identity is the lowercase SHA-256 hex digest of a stored file's bytes.
type Identity string

const identityHexLen = sha256.Size * 2

// String returns the digest in its canonical lowercase hex form.
func (id Identity) String() string { return string(id) }

// Valid reports whether id looks like a SHA-256 hex digest.
func (id Identity) Valid() bool {
	if len(id) != identityHexLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Store persists uploaded files under their content identity.
type Store struct {
	root         string
	maxBytes     int64
	minFreeBytes uint64
	logger       *slog.Logger
	statfs       statfsFunc
}

// Stats describes current store usage.
type Stats struct {
	Entries      int            `json:"entries"`
	TotalBytes   int64          `json:"total_bytes"`
	MaxBytes     int64          `json:"max_bytes"`
	FreeBytes    uint64         `json:"free_bytes"`
	TotalFSBytes uint64         `json:"total_fs_bytes"`
	FreeRatio    float64        `json:"free_ratio"`
	Files        []EntrySummary `json:"files"`
}

// EntrySummary surfaces human-friendly details about a stored file so the
// CLI can show what is currently kept.
type EntrySummary struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// New builds a store rooted at the configured upload directory.
func New(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("cas: nil config")
	}
	root := strings.TrimSpace(cfg.Paths.UploadDir)
	if root == "" {
		return nil, errors.New("cas: upload directory not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cas: create root: %w", err)
	}
	return &Store{
		root:         root,
		maxBytes:     int64(cfg.Store.MaxGiB) * 1024 * 1024 * 1024,
		minFreeBytes: uint64(cfg.Store.MinFreeGiB) * 1024 * 1024 * 1024,
		logger:       logging.NewComponentLogger(logger, "store"),
		statfs:       realStatfs,
	}, nil
}

// Root returns the directory files are stored under.
func (s *Store) Root() string { return s.root }

// Put streams r into the store and returns the content identity of its bytes.
// created reports whether a new file was written; false means identical
// content with the same extension was already present.
func (s *Store) Put(r io.Reader, ext string) (Identity, bool, error) {
	ext = normalizeExt(ext)

	tmp, err := os.CreateTemp(s.root, ".upload-*.tmp")
	if err != nil {
		return "", false, fmt.Errorf("cas: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		cleanup()
		return "", false, fmt.Errorf("cas: write upload: %w", err)
	}
	if written == 0 {
		cleanup()
		return "", false, services.Wrap(services.ErrInvalidInput, "store", "put", "upload is empty", nil)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", false, fmt.Errorf("cas: close temp file: %w", err)
	}

	identity := Identity(hex.EncodeToString(hasher.Sum(nil)))
	target := s.PathFor(identity, ext)

	if _, err := os.Stat(target); err == nil {
		os.Remove(tmpName)
		return identity, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		os.Remove(tmpName)
		return "", false, fmt.Errorf("cas: stat %q: %w", target, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", false, fmt.Errorf("cas: store %q: %w", target, err)
	}
	if err := os.Chmod(target, 0o644); err != nil {
		return "", false, fmt.Errorf("cas: chmod %q: %w", target, err)
	}
	return identity, true, nil
}

// PathFor returns the location a file with the given identity and extension
// occupies, whether or not it exists yet.
func (s *Store) PathFor(identity Identity, ext string) string {
	return filepath.Join(s.root, string(identity)+normalizeExt(ext))
}

// Resolve locates the stored file for an identity regardless of extension.
func (s *Store) Resolve(identity Identity) (string, error) {
	if !identity.Valid() {
		return "", services.Wrap(services.ErrInvalidInput, "store", "resolve", fmt.Sprintf("malformed identity %q", identity), nil)
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", fmt.Errorf("cas: list root: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), string(identity)) {
			return filepath.Join(s.root, entry.Name()), nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "store", "resolve", fmt.Sprintf("no stored file for identity %s", identity), nil)
}

// Stats returns current store usage and filesystem free-space info.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	entries, totalSize, err := s.scan()
	if err != nil {
		return st, err
	}
	totalFS, freeFS, err := s.statfs(s.root)
	if err != nil {
		return st, fmt.Errorf("cas: statfs: %w", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}
	files := make([]EntrySummary, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		files = append(files, EntrySummary{
			Name:       filepath.Base(entry.path),
			SizeBytes:  entry.sizeBytes,
			ModifiedAt: entry.modTime,
		})
	}
	st = Stats{
		Entries:      len(entries),
		TotalBytes:   totalSize,
		MaxBytes:     s.maxBytes,
		FreeBytes:    freeFS,
		TotalFSBytes: totalFS,
		FreeRatio:    ratio,
		Files:        files,
	}
	if len(entries) == 0 {
		s.logger.InfoContext(ctx, "upload store empty")
	}
	return st, nil
}

// Prune removes the oldest stored files until both the size cap and the
// free-space floor are satisfied. Identities in keep are never removed.
func (s *Store) Prune(ctx context.Context, keep map[Identity]struct{}) error {
	entries, totalSize, err := s.scan()
	if err != nil {
		return err
	}

	for len(entries) > 0 {
		freeOK, err := s.freeSpaceOK()
		if err != nil {
			return err
		}
		if totalSize <= s.maxBytes && freeOK {
			return nil
		}
		oldest := entries[0]
		if _, protected := keep[oldest.identity]; protected {
			entries = entries[1:]
			continue
		}
		if err := os.Remove(oldest.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cas: remove %q: %w", oldest.path, err)
		}
		s.logger.InfoContext(ctx, "pruned stored file",
			logging.String("file", filepath.Base(oldest.path)),
			logging.Int64("size_bytes", oldest.sizeBytes),
		)
		totalSize -= oldest.sizeBytes
		entries = entries[1:]
	}
	return nil
}

// RemoveUnreferenced deletes every stored file whose identity is not in
// keep, regardless of the size budget, and reports how many were removed.
func (s *Store) RemoveUnreferenced(ctx context.Context, keep map[Identity]struct{}) (int, error) {
	entries, _, err := s.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if _, protected := keep[entry.identity]; protected {
			continue
		}
		if err := os.Remove(entry.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("cas: remove %q: %w", entry.path, err)
		}
		s.logger.InfoContext(ctx, "removed unreferenced file",
			logging.String("file", filepath.Base(entry.path)),
			logging.Int64("size_bytes", entry.sizeBytes),
		)
		removed++
	}
	return removed, nil
}

type storeEntry struct {
	path      string
	identity  Identity
	sizeBytes int64
	modTime   time.Time
}

func (s *Store) scan() ([]storeEntry, int64, error) {
	entries := make([]storeEntry, 0)
	var total int64
	rootEntries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, 0, nil
		}
		return nil, 0, fmt.Errorf("cas: list root: %w", err)
	}
	for _, entry := range rootEntries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		identity, ok := identityFromName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("skip unreadable store entry",
				logging.String("file", entry.Name()),
				logging.Error(err),
			)
			continue
		}
		total += info.Size()
		entries = append(entries, storeEntry{
			path:      filepath.Join(s.root, entry.Name()),
			identity:  identity,
			sizeBytes: info.Size(),
			modTime:   info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

func (s *Store) freeSpaceOK() (bool, error) {
	if s.minFreeBytes == 0 {
		return true, nil
	}
	_, free, err := s.statfs(s.root)
	if err != nil {
		return false, fmt.Errorf("cas: statfs: %w", err)
	}
	return free >= s.minFreeBytes, nil
}

func identityFromName(name string) (Identity, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	id := Identity(stem)
	if !id.Valid() {
		return "", false
	}
	return id, true
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
