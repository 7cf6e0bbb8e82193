package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelscope/ms-enclave/internal/model"
)

// TestPoolLeaseLifecycle initializes a size-1 pool once (a manager
// allows exactly one InitializePool call) and exercises both the
// exhaustion and the release paths against it in sequence: a slow
// caller holds the only member busy long enough for a second, short-
// timeout caller to time out, then a third call after the slow one
// finishes proves the member went back to idle and is still usable.
func TestPoolLeaseLifecycle(t *testing.T) {
	initPayload := map[string]any{
		"size": 1,
		"kind": model.KindContainer,
		"config": model.ContainerSandboxConfig{
			Image:         "python:3.11-slim",
			SandboxConfig: model.SandboxConfig{ToolsConfig: map[string]map[string]any{"shell_executor": {}}},
		},
	}
	body, _ := json.Marshal(initPayload)
	resp, err := http.Post(baseURL+"/pool/init", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		execPayload := map[string]any{
			"parameters": map[string]any{"command": "sleep 2"},
			"timeout":    5,
		}
		b, _ := json.Marshal(execPayload)
		r, err := http.Post(baseURL+"/pool/tools/shell_executor", "application/json", bytes.NewReader(b))
		if err == nil {
			r.Body.Close()
		}
	}()

	exhaustedPayload := map[string]any{
		"parameters": map[string]any{"command": "echo too-late"},
		"timeout":    0.2,
	}
	b, _ := json.Marshal(exhaustedPayload)
	resp, err = http.Post(baseURL+"/pool/tools/shell_executor", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

	wg.Wait()

	reusePayload := map[string]any{
		"parameters": map[string]any{"command": "echo pooled"},
		"timeout":    5,
	}
	b, _ = json.Marshal(reusePayload)
	resp, err = http.Post(baseURL+"/pool/tools/shell_executor", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result model.ToolResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, model.ExecSuccess, result.Status)
	assert.Contains(t, result.Output, "pooled")

	resp, err = http.Get(baseURL + "/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats model.ManagerStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Pool.Idle, "the single pool member must be idle again after release")
	assert.Equal(t, 0, stats.Pool.Busy)
}
