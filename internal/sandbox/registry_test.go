package sandbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/sandbox"

	_ "github.com/modelscope/ms-enclave/internal/sandbox/container"
	_ "github.com/modelscope/ms-enclave/internal/sandbox/notebook"
)

func TestRegistryDuplicateKindRejected(t *testing.T) {
	r := sandbox.NewRegistry()
	require.NoError(t, r.Register(model.KindDummy, sandbox.NewDummySandbox))

	err := r.Register(model.KindDummy, sandbox.NewDummySandbox)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfigError)
}

func TestRegistryCreateUnknownKind(t *testing.T) {
	r := sandbox.NewRegistry()
	_, err := r.Create(model.SandboxKind("nonexistent"), "id", model.SandboxConfig{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfigError)
}

func TestDefaultSandboxRegistryHasBuiltinKinds(t *testing.T) {
	kinds := sandbox.DefaultSandboxRegistry.Kinds()
	assert.Contains(t, kinds, model.KindDummy)
	assert.Contains(t, kinds, model.KindContainer)
	assert.Contains(t, kinds, model.KindContainerNotebook)
}
