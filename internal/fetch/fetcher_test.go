// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/epgd/internal/cache"
	"github.com/ManuGH/epgd/internal/epg"
	"github.com/ManuGH/epgd/internal/toolcache"
	"github.com/ManuGH/epgd/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubInvoker struct {
	mu    sync.Mutex
	specs []GrabSpec
	fn    func(ctx context.Context, spec GrabSpec) error
}

func (s *stubInvoker) Grab(ctx context.Context, spec GrabSpec) error {
	s.mu.Lock()
	s.specs = append(s.specs, spec)
	s.mu.Unlock()
	return s.fn(ctx, spec)
}

type stubContainer struct {
	fn func(ctx context.Context, spec ContainerSpec) error
}

func (s *stubContainer) Run(ctx context.Context, spec ContainerSpec) error {
	return s.fn(ctx, spec)
}

// writeGuide simulates a successful grab by producing the output file.
func writeGuide(path string) error {
	return os.WriteFile(path, []byte("<tv></tv>"), 0o644)
}

type harness struct {
	fetcher *Fetcher
	wsRoot  string
	store   *cache.Store
}

func newHarness(t *testing.T, inv Invoker, cont ContainerInvoker, concurrency int64) *harness {
	t.Helper()

	wsRoot := t.TempDir()
	ws, err := workspace.NewManager(wsRoot)
	require.NoError(t, err)

	toolDir := t.TempDir()
	tools := toolcache.New(toolDir, "")
	// Mark the tool cache ready so no real clone or install runs.
	require.NoError(t, os.MkdirAll(tools.ToolDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, ".epgd-ready"), []byte("ok\n"), 0o644))

	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	f := New(Config{
		Workspaces:  ws,
		Tools:       tools,
		Invoker:     inv,
		Container:   cont,
		Store:       store,
		Concurrency: concurrency,
	})
	return &harness{fetcher: f, wsRoot: wsRoot, store: store}
}

// workspaceCount counts live workspace directories under the root.
func (h *harness) workspaceCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(h.wsRoot)
	require.NoError(t, err)
	return len(entries)
}

func siteRequest() Request {
	return Request{Source: SiteSource("arirang.com")}
}

func channelRequest() Request {
	return Request{Source: ChannelSource([]epg.Channel{{
		Site:        "arirang.com",
		Lang:        "en",
		XMLTVID:     "ArirangTV.kr",
		SiteID:      "CH_K",
		DisplayName: "Arirang TV",
	}})}
}

func TestFetchValidationHasNoSideEffects(t *testing.T) {
	inv := &stubInvoker{fn: func(_ context.Context, spec GrabSpec) error {
		return writeGuide(spec.OutputPath)
	}}
	h := newHarness(t, inv, nil, 1)

	_, err := h.fetcher.Fetch(context.Background(), Request{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	assert.Zero(t, h.workspaceCount(t), "rejected request must not allocate a workspace")
	assert.Empty(t, inv.specs, "rejected request must not invoke the grabber")
}

func TestFetchSuccessPublishesAndTearsDown(t *testing.T) {
	inv := &stubInvoker{fn: func(_ context.Context, spec GrabSpec) error {
		return writeGuide(spec.OutputPath)
	}}
	h := newHarness(t, inv, nil, 1)

	path, err := h.fetcher.Fetch(context.Background(), siteRequest())
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<tv></tv>", string(got))
	assert.Equal(t, h.store.Dir(), filepath.Dir(path), "artifact must live in the cache, not the workspace")
	assert.Zero(t, h.workspaceCount(t), "workspace must be gone after success")

	require.Len(t, inv.specs, 1)
	spec := inv.specs[0]
	assert.Equal(t, "arirang.com", spec.Site)
	assert.Empty(t, spec.ChannelsPath)
	assert.Equal(t, DefaultDays, spec.Days)
	assert.Equal(t, DefaultMaxConnections, spec.MaxConnections)
	assert.Equal(t, DefaultTimeoutMS, spec.TimeoutMS)
}

func TestFetchChannelListStagedInWorkspace(t *testing.T) {
	inv := &stubInvoker{fn: func(_ context.Context, spec GrabSpec) error {
		f, err := os.Open(spec.ChannelsPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if _, err := epg.ParseChannelList(f); err != nil {
			return err
		}
		return writeGuide(spec.OutputPath)
	}}
	h := newHarness(t, inv, nil, 1)

	_, err := h.fetcher.Fetch(context.Background(), channelRequest())
	require.NoError(t, err)

	require.Len(t, inv.specs, 1)
	assert.Empty(t, inv.specs[0].Site)
	assert.NotEmpty(t, inv.specs[0].ChannelsPath)
}

func TestFetchArtifactMissingOnCleanExit(t *testing.T) {
	inv := &stubInvoker{fn: func(context.Context, GrabSpec) error {
		return nil // exit 0, nothing written
	}}
	h := newHarness(t, inv, nil, 1)

	_, err := h.fetcher.Fetch(context.Background(), siteRequest())
	var aErr *ArtifactMissingError
	require.ErrorAs(t, err, &aErr)
	assert.Zero(t, h.workspaceCount(t), "workspace must be gone after failure")
}

func TestFetchEmptyArtifactRejected(t *testing.T) {
	inv := &stubInvoker{fn: func(_ context.Context, spec GrabSpec) error {
		return os.WriteFile(spec.OutputPath, nil, 0o644)
	}}
	h := newHarness(t, inv, nil, 1)

	_, err := h.fetcher.Fetch(context.Background(), siteRequest())
	var aErr *ArtifactMissingError
	require.ErrorAs(t, err, &aErr)
}

func TestFetchExecutionErrorPropagates(t *testing.T) {
	inv := &stubInvoker{fn: func(context.Context, GrabSpec) error {
		return &ExecutionError{ExitCode: 7, Output: "site blocked us", Err: errors.New("exit status 7")}
	}}
	h := newHarness(t, inv, nil, 1)

	_, err := h.fetcher.Fetch(context.Background(), siteRequest())
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 7, execErr.ExitCode)
	assert.Contains(t, execErr.Output, "site blocked us")
	assert.Zero(t, h.workspaceCount(t))
}

func TestFetchGzipPrefersCompressedArtifact(t *testing.T) {
	inv := &stubInvoker{fn: func(_ context.Context, spec GrabSpec) error {
		if err := writeGuide(spec.OutputPath); err != nil {
			return err
		}
		return os.WriteFile(spec.OutputPath+".gz", []byte("gz-bytes"), 0o644)
	}}
	h := newHarness(t, inv, nil, 1)

	req := siteRequest()
	req.Options.Gzip = true
	path, err := h.fetcher.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".xml.gz"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gz-bytes", string(got))
}

func TestFetchConcurrentDistinctArtifacts(t *testing.T) {
	inv := &stubInvoker{fn: func(_ context.Context, spec GrabSpec) error {
		return writeGuide(spec.OutputPath)
	}}
	h := newHarness(t, inv, nil, 10)

	const n = 10
	paths := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := h.fetcher.Fetch(context.Background(), siteRequest())
			assert.NoError(t, err)
			paths[i] = p
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, p := range paths {
		require.NotEmpty(t, p)
		assert.False(t, seen[p], "fetches must not share artifact paths")
		seen[p] = true
	}
	assert.Zero(t, h.workspaceCount(t))
}

func TestFetchContainerRejectsSiteSource(t *testing.T) {
	cont := &stubContainer{fn: func(context.Context, ContainerSpec) error { return nil }}
	h := newHarness(t, nil, cont, 1)

	_, err := h.fetcher.FetchContainer(context.Background(), siteRequest())
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, h.workspaceCount(t))
}

func TestFetchContainerSuccess(t *testing.T) {
	var gotSpec ContainerSpec
	cont := &stubContainer{fn: func(_ context.Context, spec ContainerSpec) error {
		gotSpec = spec
		return writeGuide(filepath.Join(spec.OutputDir, OutputFilename))
	}}
	h := newHarness(t, nil, cont, 1)

	path, err := h.fetcher.FetchContainer(context.Background(), channelRequest())
	require.NoError(t, err)
	assert.Equal(t, h.store.Dir(), filepath.Dir(path))
	assert.NotEmpty(t, gotSpec.ChannelsPath)
	assert.Equal(t, DefaultMaxConnections, gotSpec.MaxConnections)
	assert.Zero(t, h.workspaceCount(t))
}

func TestFetchContainerRawValidatesDocument(t *testing.T) {
	cont := &stubContainer{fn: func(_ context.Context, spec ContainerSpec) error {
		return writeGuide(filepath.Join(spec.OutputDir, OutputFilename))
	}}
	h := newHarness(t, nil, cont, 1)

	_, err := h.fetcher.FetchContainerRaw(context.Background(), []byte("not xml at all"), Options{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	doc := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<channels>
  <channel site="arirang.com" lang="en" xmltv_id="ArirangTV.kr" site_id="CH_K">Arirang TV</channel>
</channels>`)
	path, err := h.fetcher.FetchContainerRaw(context.Background(), doc, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, path)
	assert.Zero(t, h.workspaceCount(t))
}

func TestOutcomeClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "success"},
		{"validation", &ValidationError{Reason: "x"}, "invalid"},
		{"setup", &SetupError{Step: "clone", Err: errors.New("x")}, "setup_failed"},
		{"workspace", &WorkspaceError{Op: "create", Err: errors.New("x")}, "workspace_failed"},
		{"execution", &ExecutionError{ExitCode: 1, Err: errors.New("x")}, "execution_failed"},
		{"timeout", &TimeoutError{}, "timeout"},
		{"artifact", &ArtifactMissingError{Path: "p", Reason: "r"}, "artifact_missing"},
		{"canceled", context.Canceled, "canceled"},
		{"other", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeOf(tt.err))
		})
	}
}
