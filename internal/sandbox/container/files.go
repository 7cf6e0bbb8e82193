package container

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"

	"github.com/modelscope/ms-enclave/internal/model"
)

// resolvePath anchors a relative path to the sandbox's working
// directory, mirroring how a shell command run via ExecuteCommand
// would resolve it.
func (c *ContainerSandbox) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	workDir := c.config.WorkDir
	if workDir == "" {
		workDir = "/"
	}
	return filepath.Join(workDir, path)
}

// ReadFile implements tools.SandboxContext.
func (c *ContainerSandbox) ReadFile(ctx context.Context, path string) (string, error) {
	absPath := c.resolvePath(path)

	reader, _, err := c.cli.CopyFromContainer(ctx, c.containerID, absPath)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", model.ErrNotFound, path, err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	if _, err := tr.Next(); err != nil {
		return "", fmt.Errorf("%w: %s not found in container: %v", model.ErrNotFound, path, err)
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", model.ErrEngineError, path, err)
	}
	return string(data), nil
}

// WriteFile implements tools.SandboxContext.
func (c *ContainerSandbox) WriteFile(ctx context.Context, path, content string) error {
	absPath := c.resolvePath(path)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	header := &tar.Header{
		Name:    filepath.Base(absPath),
		Size:    int64(len(content)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("%w: tar header for %s: %v", model.ErrEngineError, path, err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		return fmt.Errorf("%w: tar body for %s: %v", model.ErrEngineError, path, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: tar close for %s: %v", model.ErrEngineError, path, err)
	}

	dir := filepath.Dir(absPath)
	if err := c.cli.CopyToContainer(ctx, c.containerID, dir, &buf, types.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrEngineError, path, err)
	}
	return nil
}

// AppendFile implements tools.SandboxContext. There is no native
// append over the copy API, so the existing content is read, the new
// content concatenated, and the whole file rewritten.
func (c *ContainerSandbox) AppendFile(ctx context.Context, path, content string) error {
	existing, err := c.ReadFile(ctx, path)
	if err != nil {
		existing = ""
	}
	return c.WriteFile(ctx, path, existing+content)
}

// DeleteFile implements tools.SandboxContext.
func (c *ContainerSandbox) DeleteFile(ctx context.Context, path string) error {
	absPath := c.resolvePath(path)
	result, err := c.ExecuteCommand(ctx, fmt.Sprintf("rm -f %s", absPath), defaultExecTimeout)
	if err != nil {
		return err
	}
	if result.Status != model.ExecSuccess {
		return fmt.Errorf("%w: delete %s: %s", model.ErrEngineError, path, result.Stderr)
	}
	return nil
}

// ListFiles implements tools.SandboxContext.
func (c *ContainerSandbox) ListFiles(ctx context.Context, path string) ([]string, error) {
	absPath := c.resolvePath(path)

	reader, _, err := c.cli.CopyFromContainer(ctx, c.containerID, absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", model.ErrNotFound, path, err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	var names []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", model.ErrEngineError, path, err)
		}
		name := strings.TrimPrefix(header.Name, "/")
		if header.Typeflag == tar.TypeDir {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
