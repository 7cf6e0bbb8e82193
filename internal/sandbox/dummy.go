package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/tools"
)

func init() {
	_ = DefaultSandboxRegistry.Register(model.KindDummy, NewDummySandbox)
}

// DummySandbox is an in-memory sandbox with no container backing it.
// It exists so the manager, pool, and janitor can be exercised in
// unit tests without a live Docker daemon.
type DummySandbox struct {
	*Base

	files map[string]string
}

// NewDummySandbox is a sandbox.Factory for model.KindDummy.
func NewDummySandbox(id string, cfg any, toolRegistry *tools.Registry) (Sandbox, error) {
	base, ok := cfg.(model.SandboxConfig)
	if !ok {
		return nil, fmt.Errorf("%w: dummy sandbox requires model.SandboxConfig", model.ErrConfigError)
	}
	d := &DummySandbox{
		Base:  NewBase(id, model.KindDummy, base, toolRegistry),
		files: make(map[string]string),
	}
	d.SetBackend(d)
	return d, nil
}

func (d *DummySandbox) StartBackend(ctx context.Context) error { return nil }
func (d *DummySandbox) StopBackend(ctx context.Context) error  { return nil }
func (d *DummySandbox) CleanupBackend(ctx context.Context) error {
	return nil
}

func (d *DummySandbox) ExecuteCommand(ctx context.Context, command string, timeout int) (model.CommandResult, error) {
	d.touch()
	return model.CommandResult{
		Command:  command,
		Status:   model.ExecSuccess,
		ExitCode: 0,
		Stdout:   fmt.Sprintf("dummy: %s", command),
	}, nil
}

func (d *DummySandbox) ReadFile(ctx context.Context, path string) (string, error) {
	content, ok := d.files[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrNotFound, path)
	}
	return content, nil
}

func (d *DummySandbox) WriteFile(ctx context.Context, path, content string) error {
	d.files[path] = content
	return nil
}

func (d *DummySandbox) AppendFile(ctx context.Context, path, content string) error {
	d.files[path] += content
	return nil
}

func (d *DummySandbox) DeleteFile(ctx context.Context, path string) error {
	delete(d.files, path)
	return nil
}

func (d *DummySandbox) ListFiles(ctx context.Context, path string) ([]string, error) {
	names := make([]string, 0, len(d.files))
	for name := range d.files {
		if strings.HasPrefix(name, path) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (d *DummySandbox) NotebookExecute(ctx context.Context, code string, timeout int) (model.CommandResult, error) {
	return model.CommandResult{}, fmt.Errorf("%w: dummy sandbox has no notebook kernel", model.ErrConfigError)
}
