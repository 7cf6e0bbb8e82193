package container

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modelscope/ms-enclave/internal/model"
)

func TestResolvePath(t *testing.T) {
	cs := &ContainerSandbox{config: model.ContainerSandboxConfig{SandboxConfig: model.SandboxConfig{WorkDir: "/workspace"}}}
	assert.Equal(t, "/etc/passwd", cs.resolvePath("/etc/passwd"))
	assert.Equal(t, "/workspace/script.py", cs.resolvePath("script.py"))
	assert.Equal(t, "/workspace/sub/dir", cs.resolvePath("sub/dir"))
}

func TestResolvePathDefaultsToRoot(t *testing.T) {
	cs := &ContainerSandbox{}
	assert.Equal(t, "/script.py", cs.resolvePath("script.py"))
}
