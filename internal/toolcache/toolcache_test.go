// SPDX-License-Identifier: MIT

package toolcache

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

// stubCommands replaces git/npm with a no-op and counts invocations per verb.
func stubCommands(t *testing.T, cloneCount, installCount *atomic.Int64) {
	t.Helper()
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		switch name {
		case "git":
			cloneCount.Add(1)
			// Emulate the clone side effect: create the target directory.
			target := args[len(args)-1]
			if err := os.MkdirAll(target, 0o755); err != nil {
				t.Fatalf("stub clone mkdir: %v", err)
			}
		case "npm":
			installCount.Add(1)
		}
		return exec.CommandContext(ctx, "true")
	}
	t.Cleanup(func() { commandContext = orig })
}

func TestEnsureReadyIdempotent(t *testing.T) {
	var clones, installs atomic.Int64
	stubCommands(t, &clones, &installs)

	c := New(t.TempDir(), "")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := c.EnsureReady(ctx); err != nil {
			t.Fatalf("EnsureReady %d: %v", i, err)
		}
	}

	if got := clones.Load(); got != 1 {
		t.Fatalf("clone invoked %d times, want 1", got)
	}
	if got := installs.Load(); got != 1 {
		t.Fatalf("install invoked %d times, want 1", got)
	}
	if !c.Ready() {
		t.Fatal("cache not marked ready")
	}
}

func TestEnsureReadyConcurrentFirstUse(t *testing.T) {
	var clones, installs atomic.Int64
	stubCommands(t, &clones, &installs)

	c := New(t.TempDir(), "")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.EnsureReady(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := clones.Load(); got != 1 {
		t.Fatalf("clone invoked %d times under concurrency, want 1", got)
	}
}

func TestEnsureReadyCloneFailureCleansPartialCheckout(t *testing.T) {
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if name == "git" {
			target := args[len(args)-1]
			if err := os.MkdirAll(target, 0o755); err != nil {
				t.Fatalf("stub mkdir: %v", err)
			}
			return exec.CommandContext(ctx, "false")
		}
		return exec.CommandContext(ctx, "true")
	}
	t.Cleanup(func() { commandContext = orig })

	dir := t.TempDir()
	c := New(dir, "")
	if err := c.EnsureReady(context.Background()); err == nil {
		t.Fatal("expected clone failure")
	}
	if _, err := os.Stat(c.ToolDir()); !os.IsNotExist(err) {
		t.Fatalf("partial checkout left behind: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, markerFilename)); !os.IsNotExist(err) {
		t.Fatal("ready marker written despite failure")
	}
}
