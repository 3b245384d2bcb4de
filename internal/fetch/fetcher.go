// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/epgd/internal/cache"
	xglog "github.com/ManuGH/epgd/internal/log"
	"github.com/ManuGH/epgd/internal/metrics"
	"github.com/ManuGH/epgd/internal/toolcache"
	"github.com/ManuGH/epgd/internal/workspace"
)

// OutputFilename is the guide file the grabber writes into the workspace
// output directory.
const OutputFilename = "guide.xml"

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultConcurrency = 2
	DefaultCeiling     = 30 * time.Minute
)

// Config wires the orchestrator's collaborators.
type Config struct {
	Workspaces *workspace.Manager
	Tools      *toolcache.Cache
	Invoker    Invoker
	Container  ContainerInvoker
	Store      *cache.Store

	// Concurrency bounds simultaneous grabber invocations across both the
	// local and container variants.
	Concurrency int64

	// Ceiling is the wall-clock limit for a single grabber run. On breach the
	// process group is killed and the fetch fails with *TimeoutError.
	Ceiling time.Duration
}

// Fetcher coordinates one fetch end to end: validate, ensure tooling, stage a
// workspace, run the grabber, locate the artifact, publish it to the cache,
// tear the workspace down.
type Fetcher struct {
	ws        *workspace.Manager
	tools     *toolcache.Cache
	invoker   Invoker
	container ContainerInvoker
	store     *cache.Store
	sem       *semaphore.Weighted
	ceiling   time.Duration
}

// New builds a Fetcher from cfg, applying defaults for zero-valued limits.
func New(cfg Config) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	return &Fetcher{
		ws:        cfg.Workspaces,
		tools:     cfg.Tools,
		invoker:   cfg.Invoker,
		container: cfg.Container,
		store:     cfg.Store,
		sem:       semaphore.NewWeighted(cfg.Concurrency),
		ceiling:   cfg.Ceiling,
	}
}

// Fetch runs one grab with the local toolkit and returns the absolute path of
// the published guide file. Validation failures occur before any filesystem
// side effect; the workspace is torn down on every exit path.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	opts := req.Options.withDefaults()

	path, err := f.run(ctx, "local", func(ctx context.Context, ws *workspace.Workspace) error {
		if err := f.tools.EnsureReady(ctx); err != nil {
			return &SetupError{Step: setupStep(err), Err: err}
		}

		spec := GrabSpec{
			ToolDir:        f.tools.ToolDir(),
			Site:           req.Source.Site(),
			OutputPath:     filepath.Join(ws.OutputDir(), OutputFilename),
			Days:           opts.Days,
			Lang:           opts.Lang,
			MaxConnections: opts.MaxConnections,
			TimeoutMS:      opts.TimeoutMS,
			DelayMS:        opts.DelayMS,
			Gzip:           opts.Gzip,
		}
		if channels := req.Source.Channels(); len(channels) > 0 {
			p, err := f.ws.WriteChannelList(ws, channels)
			if err != nil {
				return &WorkspaceError{Op: "write channels", Err: err}
			}
			spec.ChannelsPath = p
		}
		return f.invoker.Grab(ctx, spec)
	}, opts.Gzip)
	return path, err
}

// FetchContainer runs one grab in a container. Only channel-list sources are
// supported; the container contract has no site mode.
func (f *Fetcher) FetchContainer(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Source.Site() != "" {
		return "", &ValidationError{Reason: "container fetch requires a channel list"}
	}
	if f.container == nil {
		return "", &SetupError{Step: "docker", Err: errors.New("container runtime not configured")}
	}
	opts := req.Options.withDefaults()

	return f.run(ctx, "container", func(ctx context.Context, ws *workspace.Workspace) error {
		channelsPath, err := f.ws.WriteChannelList(ws, req.Source.Channels())
		if err != nil {
			return &WorkspaceError{Op: "write channels", Err: err}
		}
		return f.container.Run(ctx, f.containerSpec(ws, channelsPath, opts))
	}, opts.Gzip)
}

// FetchContainerRaw runs a container grab from a caller-supplied channel-list
// document instead of structured channels.
func (f *Fetcher) FetchContainerRaw(ctx context.Context, doc []byte, opts Options) (string, error) {
	if len(doc) == 0 {
		return "", &ValidationError{Reason: "channel list document is empty"}
	}
	if f.container == nil {
		return "", &SetupError{Step: "docker", Err: errors.New("container runtime not configured")}
	}
	opts = opts.withDefaults()

	return f.run(ctx, "container", func(ctx context.Context, ws *workspace.Workspace) error {
		channelsPath, err := f.ws.WriteRawChannelList(ws, doc)
		if err != nil {
			return &ValidationError{Reason: err.Error()}
		}
		return f.container.Run(ctx, f.containerSpec(ws, channelsPath, opts))
	}, opts.Gzip)
}

func (f *Fetcher) containerSpec(ws *workspace.Workspace, channelsPath string, opts Options) ContainerSpec {
	return ContainerSpec{
		ChannelsPath:   channelsPath,
		OutputDir:      ws.OutputDir(),
		Days:           opts.Days,
		MaxConnections: opts.MaxConnections,
		TimeoutMS:      opts.TimeoutMS,
		DelayMS:        opts.DelayMS,
		Gzip:           opts.Gzip,
	}
}

// run owns the shared fetch lifecycle around the variant-specific grab step:
// concurrency bound, workspace allocation and teardown, artifact location,
// publication, metrics and logging.
func (f *Fetcher) run(ctx context.Context, mode string, grab func(context.Context, *workspace.Workspace) error, gzipped bool) (string, error) {
	logger := xglog.WithComponentFromContext(ctx, "fetch")

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer f.sem.Release(1)

	metrics.FetchStarted()
	defer metrics.FetchFinished()
	start := time.Now()

	path, err := f.runLocked(ctx, grab, gzipped)

	outcome := outcomeOf(err)
	metrics.RecordFetch(mode, outcome, time.Since(start))
	evt := logger.Info()
	if err != nil {
		evt = logger.Error().Err(err)
	}
	evt.Str("event", "fetch.done").
		Str("mode", mode).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("fetch finished")
	return path, err
}

func (f *Fetcher) runLocked(ctx context.Context, grab func(context.Context, *workspace.Workspace) error, gzipped bool) (string, error) {
	ws, err := f.ws.New()
	if err != nil {
		return "", &WorkspaceError{Op: "create", Err: err}
	}
	defer func() {
		// Cleanup failures are logged, never returned: the fetch outcome is
		// already decided by this point.
		if err := f.ws.Teardown(ws); err != nil {
			fetchLog := xglog.WithComponent("fetch")
			fetchLog.Warn().
				Err(err).
				Str("workspace", ws.Dir).
				Msg("workspace teardown failed")
		}
	}()

	// The workspace ID doubles as the fetch correlation ID in logs.
	ctx = xglog.ContextWithFetchID(ctx, ws.ID)

	grabCtx, cancel := context.WithTimeout(ctx, f.ceiling)
	defer cancel()

	if err := grab(grabCtx, ws); err != nil {
		return "", err
	}

	artifact := filepath.Join(ws.OutputDir(), OutputFilename)
	if gzipped {
		// With compression enabled the grabber writes a .gz sibling; prefer it
		// when present.
		if gz := artifact + ".gz"; isNonEmptyFile(gz) {
			artifact = gz
		}
	}
	if err := locateArtifact(artifact); err != nil {
		return "", err
	}

	// Publish before teardown; the returned path must outlive the workspace.
	published, err := f.store.Publish(artifact, strings.HasSuffix(artifact, ".gz"))
	if err != nil {
		return "", &WorkspaceError{Op: "publish", Err: err}
	}
	return published, nil
}

func isNonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// setupStep extracts the failing setup phase from a tool cache error.
func setupStep(err error) string {
	if strings.Contains(err.Error(), "git clone") {
		return "clone"
	}
	if strings.Contains(err.Error(), "npm install") {
		return "install"
	}
	return "setup"
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var (
		validationErr *ValidationError
		setupErr      *SetupError
		wsErr         *WorkspaceError
		execErr       *ExecutionError
		timeoutErr    *TimeoutError
		artifactErr   *ArtifactMissingError
	)
	switch {
	case errors.As(err, &validationErr):
		return "invalid"
	case errors.As(err, &setupErr):
		return "setup_failed"
	case errors.As(err, &wsErr):
		return "workspace_failed"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &execErr):
		return "execution_failed"
	case errors.As(err, &artifactErr):
		return "artifact_missing"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
