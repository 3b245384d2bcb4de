// SPDX-License-Identifier: MIT

package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuGH/epgd/internal/epg"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "workspaces"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewWorkspaceIsolation(t *testing.T) {
	m := newTestManager(t)

	a, err := m.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := m.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if a.Dir == b.Dir {
		t.Fatalf("workspaces share a directory: %s", a.Dir)
	}
	for _, ws := range []*Workspace{a, b} {
		if info, err := os.Stat(ws.OutputDir()); err != nil || !info.IsDir() {
			t.Fatalf("output dir missing for %s: %v", ws.ID, err)
		}
	}
}

func TestWriteChannelList(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, err := m.WriteChannelList(ws, []epg.Channel{
		{Site: "dw.com", Lang: "en", XMLTVID: "DWEnglish.de", SiteID: "dw-en", DisplayName: "DW English"},
	})
	if err != nil {
		t.Fatalf("WriteChannelList: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read channel list: %v", err)
	}
	if !strings.Contains(string(data), `site="dw.com"`) {
		t.Fatalf("channel list missing site attribute:\n%s", data)
	}
	if len(data) == 0 {
		t.Fatal("channel list is empty")
	}
}

func TestWriteRawChannelListRejectsGarbage(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := m.WriteRawChannelList(ws, []byte("not xml <<<")); err == nil {
		t.Fatal("expected parse failure for malformed document")
	}
	if _, statErr := os.Stat(ws.ChannelsPath()); !os.IsNotExist(statErr) {
		t.Fatalf("malformed document must not leave a channels.xml behind: %v", statErr)
	}
}

func TestTeardown(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := m.Teardown(ws); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatalf("workspace still exists after teardown: %v", err)
	}

	// Second teardown of the same workspace is a no-op.
	if err := m.Teardown(ws); err != nil {
		t.Fatalf("repeated Teardown: %v", err)
	}
}

func TestTeardownRefusesOutsideRoot(t *testing.T) {
	m := newTestManager(t)

	victim := t.TempDir()
	sentinel := filepath.Join(victim, "keep.txt")
	if err := os.WriteFile(sentinel, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := m.Teardown(&Workspace{ID: "rogue", Dir: victim})
	if err == nil {
		t.Fatal("expected refusal for directory outside workspace root")
	}
	if _, statErr := os.Stat(sentinel); statErr != nil {
		t.Fatalf("teardown must not touch foreign paths: %v", statErr)
	}
}

func TestTeardownRefusesRootItself(t *testing.T) {
	m := newTestManager(t)
	if err := m.Teardown(&Workspace{ID: "root", Dir: m.Root()}); err == nil {
		t.Fatal("expected refusal for workspace root")
	}
}
