// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/epgd/internal/api"
	"github.com/ManuGH/epgd/internal/cache"
	"github.com/ManuGH/epgd/internal/config"
	"github.com/ManuGH/epgd/internal/docker"
	"github.com/ManuGH/epgd/internal/fetch"
	"github.com/ManuGH/epgd/internal/health"
	xglog "github.com/ManuGH/epgd/internal/log"
	"github.com/ManuGH/epgd/internal/runner"
	"github.com/ManuGH/epgd/internal/toolcache"
	"github.com/ManuGH/epgd/internal/workspace"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe logging defaults until the configuration is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "epgd",
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "epgd",
		Version: version,
	})

	workspaces, err := workspace.NewManager(cfg.WorkspaceRoot)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.workspace_failed").Msg("cannot prepare workspace root")
	}

	store, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.cache_failed").Msg("cannot prepare cache dir")
	}

	tools := toolcache.New(cfg.ToolCacheDir, cfg.RepoURL)

	// The container variant is optional: without a reachable Docker daemon the
	// local runner still serves /api/v1/fetch.
	var container fetch.ContainerInvoker
	if dockerClient, err := docker.New(cfg.DockerImage); err != nil {
		logger.Warn().Err(err).Str("event", "startup.docker_unavailable").
			Msg("docker unavailable, container fetches disabled")
	} else {
		container = dockerClient
	}

	fetcher := fetch.New(fetch.Config{
		Workspaces:  workspaces,
		Tools:       tools,
		Invoker:     runner.NewCLI(),
		Container:   container,
		Store:       store,
		Concurrency: int64(cfg.FetchConcurrency),
		Ceiling:     cfg.GrabCeiling,
	})

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewDirWritableChecker("cache", store.Dir()))
	healthMgr.RegisterChecker(health.NewDirWritableChecker("workspaces", workspaces.Root()))
	healthMgr.RegisterChecker(health.NewToolkitChecker(tools))

	server := api.NewServer(fetcher, store, healthMgr, api.Config{
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("event", "startup.listening").
			Str("addr", cfg.ListenAddr).
			Str("version", version).
			Msg("daemon started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Str("event", "shutdown.signal").Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Str("event", "shutdown.server_error").Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Str("event", "shutdown.failed").Msg("graceful shutdown failed")
		os.Exit(1)
	}
	logger.Info().Str("event", "shutdown.complete").Msg("daemon stopped")
}
