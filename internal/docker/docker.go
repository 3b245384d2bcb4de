// SPDX-License-Identifier: MIT

// Package docker runs the containerized grabber. It trades the local
// checkout and dependency install for per-call image/container overhead.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ManuGH/epgd/internal/fetch"
	xglog "github.com/ManuGH/epgd/internal/log"
)

// DefaultImage is the published grabber image.
const DefaultImage = "ghcr.io/iptv-org/epg:master"

// Fixed in-container mount points defined by the grabber image.
const (
	containerChannelsPath = "/epg/channels.xml"
	containerOutputDir    = "/epg/output"
)

// apiClient is the subset of the Docker SDK the runner needs; narrowed for
// test doubles.
type apiClient interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Client runs grab jobs in containers.
type Client struct {
	cli   apiClient
	image string
}

// New connects to the Docker daemon from the environment.
func New(imageName string) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewWithClient(cli, imageName), nil
}

// NewWithClient wires an existing SDK client; used by tests.
func NewWithClient(cli apiClient, imageName string) *Client {
	if imageName == "" {
		imageName = DefaultImage
	}
	return &Client{cli: cli, image: imageName}
}

// Run executes one containerized grab to completion. Non-zero container exit
// maps to *fetch.ExecutionError carrying the log tail; a breached ctx deadline
// maps to *fetch.TimeoutError.
func (c *Client) Run(ctx context.Context, spec fetch.ContainerSpec) error {
	logger := xglog.WithComponentFromContext(ctx, "docker")

	channelsAbs, err := filepath.Abs(spec.ChannelsPath)
	if err != nil {
		return fmt.Errorf("resolve channels path: %w", err)
	}
	outputAbs, err := filepath.Abs(spec.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(outputAbs, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var ceiling time.Duration
	if dl, ok := ctx.Deadline(); ok {
		ceiling = time.Until(dl).Round(time.Millisecond)
	}

	if err := c.ensureImage(ctx); err != nil {
		return err
	}

	env := []string{
		"MAX_CONNECTIONS=" + strconv.Itoa(spec.MaxConnections),
		"TIMEOUT=" + strconv.Itoa(spec.TimeoutMS),
		"DELAY=" + strconv.Itoa(spec.DelayMS),
		"GZIP=" + strconv.FormatBool(spec.Gzip),
		"RUN_AT_STARTUP=true",
	}
	if spec.Days > 0 {
		env = append(env, "DAYS="+strconv.Itoa(spec.Days))
	}

	cfg := &container.Config{
		Image: c.image,
		Env:   env,
	}
	hostCfg := &container.HostConfig{
		Binds: []string{
			channelsAbs + ":" + containerChannelsPath + ":ro",
			outputAbs + ":" + containerOutputDir,
		},
	}

	resp, err := c.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	defer func() {
		// Removal must not inherit a dead request context.
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.cli.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			logger.Warn().Err(err).Str("container", resp.ID).Msg("container cleanup failed")
		}
	}()

	logger.Info().
		Str("event", "container.start").
		Str("container", resp.ID).
		Str("image", c.image).
		Msg("starting grabber container")

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := c.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.StatusCode != 0 {
			out := c.logTail(resp.ID)
			return &fetch.ExecutionError{
				ExitCode: int(status.StatusCode),
				Output:   out,
				Err:      fmt.Errorf("container exited with status %d", status.StatusCode),
			}
		}
		logger.Info().Str("event", "container.success").Str("container", resp.ID).Msg("grabber container finished")
		return nil

	case err := <-errCh:
		if errors.Is(err, context.DeadlineExceeded) {
			return &fetch.TimeoutError{Limit: ceiling}
		}
		return fmt.Errorf("wait for container: %w", err)

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &fetch.TimeoutError{Limit: ceiling}
		}
		return ctx.Err()
	}
}

// ensureImage pulls the grabber image unless it is already present locally.
func (c *Client) ensureImage(ctx context.Context) error {
	logger := xglog.WithComponentFromContext(ctx, "docker")

	images, err := c.cli.ImageList(ctx, image.ListOptions{})
	if err == nil {
		for _, img := range images {
			for _, tag := range img.RepoTags {
				if tag == c.image || tag == c.image+":latest" {
					return nil
				}
			}
		}
	} else {
		logger.Warn().Err(err).Msg("image list failed, attempting pull")
	}

	reader, err := c.cli.ImagePull(ctx, c.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", c.image, err)
	}
	defer func() { _ = reader.Close() }()

	// Drain so the pull completes before the container is created.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("read image pull response: %w", err)
	}

	logger.Info().Str("event", "image.pulled").Str("image", c.image).Msg("grabber image pulled")
	return nil
}

// logTail returns the last part of the container's demuxed output for
// diagnostics; best-effort.
func (c *Client) logTail(containerID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reader, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "50",
	})
	if err != nil {
		return ""
	}
	defer func() { _ = reader.Close() }()

	var buf bytes.Buffer
	_, _ = stdcopy.StdCopy(&buf, &buf, reader)
	return buf.String()
}

var _ fetch.ContainerInvoker = (*Client)(nil)
