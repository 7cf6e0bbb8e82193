package sandbox_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/sandbox"
	"github.com/modelscope/ms-enclave/internal/tools"
)

// echoTool is a dummy-kind tool registered only for this test: no
// built-in tool targets model.KindDummy, but the lifecycle pipeline
// (bind -> execute -> reject unbound) needs one to exercise against.
type echoTool struct{}

func (echoTool) Name() string        { return "echo_tool" }
func (echoTool) Description() string { return "echoes the command field back" }
func (echoTool) Schema() tools.ToolSchema {
	return tools.ToolSchema{Type: "object", Properties: map[string]tools.SchemaProperty{
		"command": {Type: "string"},
	}}
}
func (echoTool) RequiredKind() model.SandboxKind { return model.KindDummy }
func (echoTool) Execute(ctx context.Context, sc tools.SandboxContext, params map[string]any) (model.ToolResult, error) {
	cmd, _ := params["command"].(string)
	result, err := sc.ExecuteCommand(ctx, cmd, 0)
	if err != nil {
		return model.ToolResult{}, err
	}
	return model.ToolResult{ToolName: "echo_tool", Status: result.Status, Output: result.Stdout}, nil
}

func newTestToolRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register("echo_tool", func() tools.Tool { return echoTool{} }))
	return r
}

func TestBaseLifecycleBindsAndExecutes(t *testing.T) {
	toolRegistry := newTestToolRegistry(t)
	cfg := model.SandboxConfig{
		ToolsConfig: map[string]map[string]any{"echo_tool": {}},
	}

	sb, err := sandbox.NewDummySandbox("sb-1", cfg, toolRegistry)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sb.Start(ctx))
	assert.Equal(t, model.StatusRunning, sb.Status())
	assert.Contains(t, sb.BoundTools(), "echo_tool")

	result, err := sb.ExecuteTool(ctx, "echo_tool", map[string]any{"command": "hi"})
	require.NoError(t, err)
	assert.Equal(t, model.ExecSuccess, result.Status)
	assert.Contains(t, result.Output, "hi")

	require.NoError(t, sb.Stop(ctx))
	assert.Equal(t, model.StatusStopped, sb.Status())
	require.NoError(t, sb.Cleanup(ctx))
	assert.Equal(t, model.StatusCleanup, sb.Status())
}

func TestBaseRejectsUnboundTool(t *testing.T) {
	toolRegistry := newTestToolRegistry(t)
	sb, err := sandbox.NewDummySandbox("sb-2", model.SandboxConfig{}, toolRegistry)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sb.Start(ctx))

	_, err = sb.ExecuteTool(ctx, "echo_tool", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBaseRejectsWrongKindTool(t *testing.T) {
	toolRegistry := newTestToolRegistry(t)
	cfg := model.SandboxConfig{
		ToolsConfig: map[string]map[string]any{"shell_executor": {}},
	}
	_ = toolRegistry.Register("shell_executor", func() tools.Tool { return &tools.ShellExecutor{} })

	sb, err := sandbox.NewDummySandbox("sb-3", cfg, toolRegistry)
	require.NoError(t, err)

	err = sb.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfigError)
	assert.Equal(t, model.StatusError, sb.Status())
}

func TestExecuteToolRejectsNonRunningSandbox(t *testing.T) {
	toolRegistry := newTestToolRegistry(t)
	sb, err := sandbox.NewDummySandbox("sb-4", model.SandboxConfig{}, toolRegistry)
	require.NoError(t, err)

	_, err = sb.ExecuteTool(context.Background(), "echo_tool", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfigError)
}
