package tools_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/tools"
)

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := tools.NewRegistry()
	factory := func() tools.Tool { return &tools.ShellExecutor{} }

	require.NoError(t, r.Register("shell_executor", factory))

	err := r.Register("shell_executor", factory)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfigError)
}

func TestRegistryCreateUnknown(t *testing.T) {
	r := tools.NewRegistry()
	_, err := r.Create("does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	names := tools.DefaultRegistry.List()
	assert.Contains(t, names, "python_executor")
	assert.Contains(t, names, "shell_executor")
	assert.Contains(t, names, "file_operation")
	assert.Contains(t, names, "notebook_executor")
}

func TestSchemaOpenAIShape(t *testing.T) {
	schema, err := tools.DefaultRegistry.Schema("shell_executor")
	require.NoError(t, err)
	assert.Equal(t, "function", schema["type"])
	fn, ok := schema["function"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "shell_executor", fn["name"])
}
