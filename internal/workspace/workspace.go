// SPDX-License-Identifier: MIT

// Package workspace manages the ephemeral per-request directories that isolate
// one fetch operation's inputs and outputs.
package workspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/epgd/internal/epg"
	"github.com/ManuGH/epgd/internal/fsutil"
	xglog "github.com/ManuGH/epgd/internal/log"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

// ChannelsFilename is the fixed name of the channel-list document inside a
// workspace; the container variant mounts it at /epg/channels.xml.
const ChannelsFilename = "channels.xml"

// OutputDirname holds grabber output inside a workspace.
const OutputDirname = "output"

// Workspace is one isolated directory, owned by exactly one fetch invocation.
type Workspace struct {
	ID  string
	Dir string
}

// ChannelsPath returns the path of the channel-list document.
func (w *Workspace) ChannelsPath() string {
	return filepath.Join(w.Dir, ChannelsFilename)
}

// OutputDir returns the directory the grabber writes into.
func (w *Workspace) OutputDir() string {
	return filepath.Join(w.Dir, OutputDirname)
}

// Manager allocates and tears down workspaces underneath a single root.
// Teardown refuses to touch anything outside that root.
type Manager struct {
	root string
}

// NewManager creates the workspace root if needed.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: abs}, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string { return m.root }

// New allocates a fresh, collision-free workspace with an output subdirectory.
func (m *Manager) New() (*Workspace, error) {
	id := uuid.New().String()
	dir := filepath.Join(m.root, "ws-"+id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	if err := os.Mkdir(filepath.Join(dir, OutputDirname), 0o755); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("create workspace output dir: %w", err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// WriteChannelList serializes the channel-list document into the workspace.
// The write is atomic: a failed write never leaves a zero-byte channels.xml
// behind to be mistaken for a valid document.
func (m *Manager) WriteChannelList(ws *Workspace, channels []epg.Channel) (string, error) {
	data, err := epg.MarshalChannelList(channels)
	if err != nil {
		return "", err
	}
	path := ws.ChannelsPath()
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write channel list: %w", err)
	}
	return path, nil
}

// WriteRawChannelList places a caller-supplied channel-list document into the
// workspace after checking that it parses and every entry is complete.
func (m *Manager) WriteRawChannelList(ws *Workspace, doc []byte) (string, error) {
	parsed, err := epg.ParseChannelList(bytes.NewReader(doc))
	if err != nil {
		return "", err
	}
	if err := epg.ValidateChannels(parsed.Channels); err != nil {
		return "", err
	}
	path := ws.ChannelsPath()
	if err := renameio.WriteFile(path, doc, 0o644); err != nil {
		return "", fmt.Errorf("write channel list: %w", err)
	}
	return path, nil
}

// Teardown removes the workspace directory recursively. Safe to call on a
// partially populated workspace and idempotent on repeat calls. It refuses to
// remove anything that does not resolve underneath the workspace root.
func (m *Manager) Teardown(ws *Workspace) error {
	if ws == nil || ws.Dir == "" {
		return nil
	}

	confined, err := fsutil.ConfineAbsPath(m.root, ws.Dir)
	if err != nil {
		return fmt.Errorf("refusing teardown outside workspace root: %w", err)
	}
	resolvedRoot := m.root
	if rr, err := filepath.EvalSymlinks(m.root); err == nil {
		resolvedRoot = rr
	}
	if confined == m.root || confined == resolvedRoot {
		return fmt.Errorf("refusing teardown of workspace root itself")
	}

	if err := os.RemoveAll(confined); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	wsLog := xglog.WithComponent("workspace")
	wsLog.Debug().
		Str("event", "workspace.teardown").
		Str("path", confined).
		Msg("workspace removed")
	return nil
}
