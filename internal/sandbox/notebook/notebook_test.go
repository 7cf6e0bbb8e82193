package notebook

import (
	"archive/tar"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelscope/ms-enclave/internal/model"
)

func TestBuildContextTarContainsDockerfile(t *testing.T) {
	reader, err := buildContextTar(kernelGatewayDockerfile)
	require.NoError(t, err)

	tr := tar.NewReader(reader)
	header, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "Dockerfile", header.Name)

	content, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, kernelGatewayDockerfile, string(content))

	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNotebookExecuteWithoutConnectionReturnsExecError(t *testing.T) {
	ns := &NotebookSandbox{}
	result, err := ns.NotebookExecute(context.Background(), "1 + 1", 5)
	require.NoError(t, err)
	assert.Equal(t, model.ExecError, result.Status)
	assert.Contains(t, result.Stderr, "not connected")
}
