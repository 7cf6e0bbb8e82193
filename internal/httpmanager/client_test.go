package httpmanager_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelscope/ms-enclave/internal/api"
	"github.com/modelscope/ms-enclave/internal/httpmanager"
	"github.com/modelscope/ms-enclave/internal/manager"
	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/sandbox"
	"github.com/modelscope/ms-enclave/internal/tools"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mgr := manager.New(model.SandboxManagerConfig{}, sandbox.DefaultSandboxRegistry, tools.DefaultRegistry)
	srv := api.New(mgr)
	srv.RegisterRoutes()
	ts := httptest.NewServer(srv.Echo)
	t.Cleanup(ts.Close)
	return ts
}

func TestClientCreateGetDeleteRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	c := httpmanager.New(ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := c.CreateSandbox(ctx, model.KindDummy, model.SandboxConfig{}, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	info, err := c.GetSandboxInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.KindDummy, info.Kind)
	assert.Equal(t, model.StatusRunning, info.Status)

	ok, err := c.DeleteSandbox(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.DeleteSandbox(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientGetUnknownSandboxIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	c := httpmanager.New(ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.GetSandboxInfo(ctx, "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClientListSandboxes(t *testing.T) {
	ts := newTestServer(t)
	c := httpmanager.New(ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.CreateSandbox(ctx, model.KindDummy, model.SandboxConfig{}, "")
	require.NoError(t, err)

	infos, err := c.ListSandboxes(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
