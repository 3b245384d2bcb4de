// SPDX-License-Identifier: MIT

// Package config assembles the daemon configuration from defaults, an
// optional YAML file, and environment variables, in ascending precedence.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// AppConfig is the resolved daemon configuration.
type AppConfig struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `yaml:"listen"`

	// DataDir anchors the default cache, workspace, and tool directories.
	DataDir string `yaml:"data_dir"`

	CacheDir      string `yaml:"cache_dir"`
	WorkspaceRoot string `yaml:"workspace_root"`
	ToolCacheDir  string `yaml:"tool_cache_dir"`

	// RepoURL is the grabber toolkit upstream cloned on first use.
	RepoURL string `yaml:"repo_url"`

	// DockerImage runs container fetches.
	DockerImage string `yaml:"docker_image"`

	DefaultDays           int `yaml:"default_days"`
	DefaultMaxConnections int `yaml:"default_max_connections"`
	DefaultTimeoutMS      int `yaml:"default_timeout_ms"`
	DefaultDelayMS        int `yaml:"default_delay_ms"`

	// FetchConcurrency bounds simultaneous grabber runs.
	FetchConcurrency int `yaml:"fetch_concurrency"`

	// GrabCeiling is the wall-clock limit per grabber run.
	GrabCeiling time.Duration `yaml:"grab_ceiling"`

	// RateLimitRequests per RateLimitWindow, applied to fetch endpoints.
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the baseline configuration.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:            ":8080",
		DataDir:               "./data",
		DefaultDays:           3,
		DefaultMaxConnections: 1,
		DefaultTimeoutMS:      30000,
		DefaultDelayMS:        0,
		FetchConcurrency:      2,
		GrabCeiling:           30 * time.Minute,
		RateLimitRequests:     10,
		RateLimitWindow:       time.Minute,
		LogLevel:              "info",
	}
}

// normalize derives the per-concern directories from DataDir when they are
// not set explicitly.
func (c *AppConfig) normalize() {
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "cache")
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = filepath.Join(c.DataDir, "workspaces")
	}
	if c.ToolCacheDir == "" {
		c.ToolCacheDir = filepath.Join(c.DataDir, "tools")
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *AppConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is empty")
	}
	if c.DefaultDays <= 0 {
		return fmt.Errorf("default days must be positive, got %d", c.DefaultDays)
	}
	if c.DefaultMaxConnections <= 0 {
		return fmt.Errorf("default max connections must be positive, got %d", c.DefaultMaxConnections)
	}
	if c.DefaultTimeoutMS <= 0 {
		return fmt.Errorf("default timeout must be positive, got %d", c.DefaultTimeoutMS)
	}
	if c.DefaultDelayMS < 0 {
		return fmt.Errorf("default delay must not be negative, got %d", c.DefaultDelayMS)
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("fetch concurrency must be positive, got %d", c.FetchConcurrency)
	}
	if c.GrabCeiling <= 0 {
		return fmt.Errorf("grab ceiling must be positive, got %s", c.GrabCeiling)
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

// applyEnv overlays EPGD_* environment variables onto c.
func (c *AppConfig) applyEnv() {
	c.ListenAddr = ParseString("EPGD_LISTEN", c.ListenAddr)
	c.DataDir = ParseString("EPGD_DATA_DIR", c.DataDir)
	c.CacheDir = ParseString("EPGD_CACHE_DIR", c.CacheDir)
	c.WorkspaceRoot = ParseString("EPGD_WORKSPACE_ROOT", c.WorkspaceRoot)
	c.ToolCacheDir = ParseString("EPGD_TOOL_CACHE_DIR", c.ToolCacheDir)
	c.RepoURL = ParseString("EPGD_REPO_URL", c.RepoURL)
	c.DockerImage = ParseString("EPGD_DOCKER_IMAGE", c.DockerImage)
	c.DefaultDays = ParseInt("EPGD_DEFAULT_DAYS", c.DefaultDays)
	c.DefaultMaxConnections = ParseInt("EPGD_DEFAULT_MAX_CONNECTIONS", c.DefaultMaxConnections)
	c.DefaultTimeoutMS = ParseInt("EPGD_DEFAULT_TIMEOUT_MS", c.DefaultTimeoutMS)
	c.DefaultDelayMS = ParseInt("EPGD_DEFAULT_DELAY_MS", c.DefaultDelayMS)
	c.FetchConcurrency = ParseInt("EPGD_FETCH_CONCURRENCY", c.FetchConcurrency)
	c.GrabCeiling = ParseDuration("EPGD_GRAB_CEILING", c.GrabCeiling)
	c.RateLimitRequests = ParseInt("EPGD_RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindow = ParseDuration("EPGD_RATE_LIMIT_WINDOW", c.RateLimitWindow)
	c.LogLevel = ParseString("EPGD_LOG_LEVEL", c.LogLevel)
}
