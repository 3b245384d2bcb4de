// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	name   string
	result CheckResult
}

func (c staticChecker) Name() string                      { return c.name }
func (c staticChecker) Check(context.Context) CheckResult { return c.result }

type staticReady bool

func (r staticReady) Ready() bool { return bool(r) }

func TestHealthAlwaysOK(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(staticChecker{"broken", CheckResult{Status: StatusUnhealthy}})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code, "liveness stays 200 even with unhealthy components")

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks, "non-verbose probe omits component detail")
}

func TestHealthVerboseIncludesChecks(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(staticChecker{"a", CheckResult{Status: StatusHealthy}})
	m.RegisterChecker(staticChecker{"b", CheckResult{Status: StatusDegraded}})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest("GET", "/healthz?verbose=true", nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestReadyDegradedStillReady(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(NewToolkitChecker(staticReady(false)))

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestReadyUnhealthyReturns503(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(staticChecker{"cache", CheckResult{Status: StatusUnhealthy}})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, 503, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
}

func TestDirWritableChecker(t *testing.T) {
	ok := NewDirWritableChecker("cache", t.TempDir())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	missing := NewDirWritableChecker("cache", filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, StatusUnhealthy, missing.Check(context.Background()).Status)
}

func TestToolkitChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewToolkitChecker(staticReady(true)).Check(context.Background()).Status)
	assert.Equal(t, StatusDegraded, NewToolkitChecker(staticReady(false)).Check(context.Background()).Status)
}
