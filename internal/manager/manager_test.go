package manager_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelscope/ms-enclave/internal/manager"
	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/sandbox"
	"github.com/modelscope/ms-enclave/internal/tools"
)

// blockingTool waits on a named, test-controlled gate before
// returning, so a test can hold individual pool leases open and
// release them in a chosen order. It reports the id of the sandbox it
// ran on, so FIFO reuse can be checked by identity rather than timing.
type blockingTool struct{}

var (
	blockMu    sync.Mutex
	blockGates = map[string]chan struct{}{}
)

// setBlockGate registers ch under key; a blocking_tool call with
// params["gate"] == key waits on ch. A nil or absent gate means the
// call returns immediately.
func setBlockGate(key string, ch chan struct{}) {
	blockMu.Lock()
	blockGates[key] = ch
	blockMu.Unlock()
}

func init() {
	_ = tools.DefaultRegistry.Register("blocking_tool", func() tools.Tool { return blockingTool{} })
}

func (blockingTool) Name() string        { return "blocking_tool" }
func (blockingTool) Description() string { return "blocks on a named test gate, then echoes the sandbox id" }
func (blockingTool) Schema() tools.ToolSchema {
	return tools.ToolSchema{Type: "object", Properties: map[string]tools.SchemaProperty{
		"gate": {Type: "string"},
	}}
}
func (blockingTool) RequiredKind() model.SandboxKind { return model.KindDummy }
func (blockingTool) Execute(ctx context.Context, sc tools.SandboxContext, params map[string]any) (model.ToolResult, error) {
	key, _ := params["gate"].(string)
	blockMu.Lock()
	gate := blockGates[key]
	blockMu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.ToolResult{}, ctx.Err()
		}
	}
	var id string
	if ib, ok := sc.(interface{ ID() string }); ok {
		id = ib.ID()
	}
	return model.ToolResult{ToolName: "blocking_tool", Status: model.ExecSuccess, Metadata: map[string]any{"sandbox_id": id}}, nil
}

func newTestManager(t *testing.T) *manager.LocalManager {
	t.Helper()
	m := manager.New(model.SandboxManagerConfig{
		CleanupInterval: time.Hour,
	}, sandbox.DefaultSandboxRegistry, tools.DefaultRegistry)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func TestCreateGetDeleteSandbox(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.CreateSandbox(ctx, model.KindDummy, model.SandboxConfig{}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	info, err := m.GetSandboxInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, info.Status)

	ok, err := m.DeleteSandbox(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.GetSandboxInfo(ctx, id)
	assert.ErrorIs(t, err, model.ErrNotFound)

	ok, err = m.DeleteSandbox(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListSandboxesFilter(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.CreateSandbox(ctx, model.KindDummy, model.SandboxConfig{}, "")
	require.NoError(t, err)

	running := model.StatusRunning
	infos, err := m.ListSandboxes(ctx, &running)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].ID)

	stopped := model.StatusStopped
	infos, err = m.ListSandboxes(ctx, &stopped)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestCleanupAllSandboxesIsFixedPoint(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateSandbox(ctx, model.KindDummy, model.SandboxConfig{}, "")
	require.NoError(t, err)
	_, err = m.CreateSandbox(ctx, model.KindDummy, model.SandboxConfig{}, "")
	require.NoError(t, err)

	errs := m.CleanupAllSandboxes(ctx)
	assert.Empty(t, errs)

	errs = m.CleanupAllSandboxes(ctx)
	assert.Empty(t, errs)
}

func TestPoolLeaseTimesOutWhenExhausted(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	gate := make(chan struct{})
	setBlockGate(t.Name(), gate)
	defer close(gate)

	cfg := model.SandboxConfig{ToolsConfig: map[string]map[string]any{"blocking_tool": {}}}
	require.NoError(t, m.InitializePool(ctx, 1, model.KindDummy, cfg))

	go func() {
		_, _ = m.ExecuteToolInPool(ctx, "blocking_tool", map[string]any{"gate": t.Name()}, 2*time.Second)
	}()
	require.Eventually(t, func() bool {
		return m.GetStats(ctx).Pool.Busy == 1
	}, time.Second, 5*time.Millisecond, "first lease never went busy")

	_, err := m.ExecuteToolInPool(ctx, "blocking_tool", map[string]any{"gate": t.Name()}, 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTimeout)
}

// TestPoolLeaseIsFIFOByReleaseTime exercises the spec's pool-FIFO
// scenario: lease twice concurrently, release the first lease before
// the second, then lease once more and expect the id released first
// back (FIFO by release time, not by original lease order).
func TestPoolLeaseIsFIFOByReleaseTime(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	gate1 := make(chan struct{})
	gate2 := make(chan struct{})
	setBlockGate("g1", gate1)
	setBlockGate("g2", gate2)

	cfg := model.SandboxConfig{ToolsConfig: map[string]map[string]any{"blocking_tool": {}}}
	require.NoError(t, m.InitializePool(ctx, 2, model.KindDummy, cfg))

	res1 := make(chan model.ToolResult, 1)
	res2 := make(chan model.ToolResult, 1)
	errs := make(chan error, 2)
	go func() {
		r, err := m.ExecuteToolInPool(ctx, "blocking_tool", map[string]any{"gate": "g1"}, 2*time.Second)
		errs <- err
		res1 <- r
	}()
	go func() {
		r, err := m.ExecuteToolInPool(ctx, "blocking_tool", map[string]any{"gate": "g2"}, 2*time.Second)
		errs <- err
		res2 <- r
	}()
	require.Eventually(t, func() bool {
		return m.GetStats(ctx).Pool.Busy == 2
	}, time.Second, 5*time.Millisecond, "both leases never went busy")

	close(gate1)
	l1 := <-res1
	require.Eventually(t, func() bool {
		return m.GetStats(ctx).Pool.Idle == 1
	}, time.Second, 5*time.Millisecond, "first lease never returned to idle")

	close(gate2)
	<-res2
	require.Eventually(t, func() bool {
		return m.GetStats(ctx).Pool.Idle == 2
	}, time.Second, 5*time.Millisecond, "second lease never returned to idle")

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	third, err := m.ExecuteToolInPool(ctx, "blocking_tool", map[string]any{"gate": "g3"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, l1.Metadata["sandbox_id"], third.Metadata["sandbox_id"], "next lease must reuse the id released first")
}

func TestInitializePoolRejectsDoubleInit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.InitializePool(ctx, 1, model.KindDummy, model.SandboxConfig{}))
	err := m.InitializePool(ctx, 1, model.KindDummy, model.SandboxConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfigError)
}
