// SPDX-License-Identifier: MIT

// Package cache stores finished guide files outside any fetch workspace, so
// their lifetime is decoupled from workspace teardown.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/ManuGH/epgd/internal/fsutil"
	xglog "github.com/ManuGH/epgd/internal/log"
	"github.com/ManuGH/epgd/internal/metrics"
)

// Entry describes one cached guide file.
type Entry struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size_bytes"`
	Created  time.Time `json:"created"`
}

// Store manages the guide cache directory.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute cache directory.
func (s *Store) Dir() string { return s.dir }

// Publish copies src into the cache under a fresh timestamped name and
// returns the absolute destination path. The copy is atomic; readers never
// observe a partial file. Concurrent publishes get distinct names.
func (s *Store) Publish(src string, gzipped bool) (string, error) {
	name := freshName(gzipped)
	dst := filepath.Join(s.dir, name)

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = in.Close() }()

	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("stage cache file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, in); err != nil {
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("commit cache file: %w", err)
	}

	s.refreshStats()
	cacheLog := xglog.WithComponent("cache")
	cacheLog.Debug().
		Str("event", "cache.publish").
		Str("file", name).
		Msg("guide published")
	return dst, nil
}

// List returns cached guide files, newest first.
func (s *Store) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		if de.IsDir() || !isGuideName(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Filename: de.Name(),
			Size:     info.Size(),
			Created:  info.ModTime().UTC(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Created.After(entries[j].Created) })
	return entries, nil
}

// Resolve maps a client-supplied filename to an absolute path inside the
// cache dir, rejecting traversal and unknown names.
func (s *Store) Resolve(filename string) (string, error) {
	if !isGuideName(filename) {
		return "", fmt.Errorf("unknown cache file %q", filename)
	}
	path, err := fsutil.ConfineRelPath(s.dir, filename)
	if err != nil {
		return "", err
	}
	if err := fsutil.IsRegularFile(path); err != nil {
		return "", fmt.Errorf("unknown cache file %q: %w", filename, err)
	}
	return path, nil
}

// Clear removes all cached guide files and reports how many were deleted.
func (s *Store) Clear() (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if err := os.Remove(filepath.Join(s.dir, e.Filename)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Filename, err)
		}
		removed++
	}
	s.refreshStats()
	cacheLog := xglog.WithComponent("cache")
	cacheLog.Info().
		Str("event", "cache.clear").
		Int("removed", removed).
		Msg("cache cleared")
	return removed, nil
}

func (s *Store) refreshStats() {
	entries, err := s.List()
	if err != nil {
		return
	}
	var bytes int64
	for _, e := range entries {
		bytes += e.Size
	}
	metrics.SetCacheStats(len(entries), bytes)
}

// freshName builds guide_<UTC timestamp>_<entropy>.xml[.gz]. The entropy
// suffix keeps concurrent publishes within the same second collision-free.
func freshName(gzipped bool) string {
	ts := time.Now().UTC().Format("20060102_150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("guide_%s_%s.xml", ts, suffix)
	if gzipped {
		name += ".gz"
	}
	return name
}

func isGuideName(name string) bool {
	if !strings.HasPrefix(name, "guide_") {
		return false
	}
	return strings.HasSuffix(name, ".xml") || strings.HasSuffix(name, ".xml.gz")
}
