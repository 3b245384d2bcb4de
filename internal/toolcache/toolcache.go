// SPDX-License-Identifier: MIT

// Package toolcache maintains the shared, process-wide checkout of the grabber
// toolkit and its installed dependencies, reused across fetch requests.
package toolcache

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	xglog "github.com/ManuGH/epgd/internal/log"
	"github.com/ManuGH/epgd/internal/metrics"
	"github.com/google/renameio/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultRepoURL is the canonical upstream of the grabber toolkit.
const DefaultRepoURL = "https://github.com/iptv-org/epg.git"

// markerFilename flags a completed clone+install so restarts skip setup.
const markerFilename = ".epgd-ready"

// commandContext is swapped out by tests to count and stub invocations.
var commandContext = exec.CommandContext

// Cache owns one tool checkout directory. EnsureReady is idempotent and safe
// for concurrent first callers: one setup runs, the rest wait on its result.
type Cache struct {
	dir     string
	repoURL string
	group   singleflight.Group
}

// New returns a cache rooted at dir. The checkout lives at dir/epg.
func New(dir, repoURL string) *Cache {
	if repoURL == "" {
		repoURL = DefaultRepoURL
	}
	return &Cache{dir: dir, repoURL: repoURL}
}

// ToolDir returns the grabber checkout path.
func (c *Cache) ToolDir() string {
	return filepath.Join(c.dir, "epg")
}

// Ready reports whether setup has completed previously.
func (c *Cache) Ready() bool {
	_, err := os.Stat(filepath.Join(c.dir, markerFilename))
	return err == nil
}

// EnsureReady guarantees a usable checkout with installed dependencies.
// Concurrent callers share a single in-flight setup via singleflight; repeat
// calls after success are marker-file checks only.
func (c *Cache) EnsureReady(ctx context.Context) error {
	if c.Ready() {
		return nil
	}

	_, err, _ := c.group.Do("setup", func() (any, error) {
		// Re-check under the flight: a concurrent caller may have finished.
		if c.Ready() {
			return nil, nil
		}
		return nil, c.setup(ctx)
	})
	return err
}

func (c *Cache) setup(ctx context.Context) error {
	logger := xglog.WithComponentFromContext(ctx, "toolcache")

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create tool cache dir: %w", err)
	}

	toolDir := c.ToolDir()
	if _, err := os.Stat(toolDir); os.IsNotExist(err) {
		logger.Info().
			Str("event", "toolcache.clone").
			Str("repo", c.repoURL).
			Str("path", toolDir).
			Msg("cloning grabber toolkit")
		if err := c.clone(ctx, toolDir); err != nil {
			return err
		}
	}

	logger.Info().
		Str("event", "toolcache.install").
		Str("path", toolDir).
		Msg("installing grabber dependencies")
	if err := c.install(ctx, toolDir); err != nil {
		return err
	}

	if err := renameio.WriteFile(filepath.Join(c.dir, markerFilename), []byte("ok\n"), 0o644); err != nil {
		return fmt.Errorf("write ready marker: %w", err)
	}

	logger.Info().Str("event", "toolcache.ready").Msg("tool cache ready")
	return nil
}

func (c *Cache) clone(ctx context.Context, toolDir string) error {
	metrics.IncToolSetup("clone")
	cmd := commandContext(ctx, "git", "clone", "--depth", "1", "-b", "master", c.repoURL, toolDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// A partial clone must not be mistaken for a usable checkout later.
		_ = os.RemoveAll(toolDir)
		return fmt.Errorf("git clone: %w: %s", err, tail(out))
	}
	return nil
}

func (c *Cache) install(ctx context.Context, toolDir string) error {
	metrics.IncToolSetup("install")
	cmd := commandContext(ctx, "npm", "install")
	cmd.Dir = toolDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("npm install: %w: %s", err, tail(out))
	}
	return nil
}

// tail trims diagnostics to the last few lines for error wrapping.
func tail(out []byte) string {
	const maxTail = 512
	s := strings.TrimSpace(string(out))
	if len(s) > maxTail {
		s = "..." + s[len(s)-maxTail:]
	}
	return s
}
