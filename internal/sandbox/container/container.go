// Package container implements a Sandbox backed by the Docker engine:
// create/start/exec/stop/remove over github.com/docker/docker/client.
package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog/log"

	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/sandbox"
	"github.com/modelscope/ms-enclave/internal/tools"
)

const (
	// ManagedLabel tags every container this process creates. Nothing
	// in this module reads it back; orphaned containers are not swept.
	ManagedLabel = "xyz.ms-enclave.managed"

	startPollInterval  = 500 * time.Millisecond
	startTimeout       = 30 * time.Second
	stopGrace          = 10 * time.Second
	cleanupStopGrace   = 5 * time.Second
	defaultExecTimeout = 30
)

func init() {
	_ = sandbox.DefaultSandboxRegistry.Register(model.KindContainer, NewContainerSandbox)
}

// ContainerSandbox implements sandbox.Sandbox over a single Docker
// container.
type ContainerSandbox struct {
	*sandbox.Base

	config      model.ContainerSandboxConfig
	cli         *client.Client
	containerID string
}

// NewContainerSandbox is a sandbox.Factory for model.KindContainer.
func NewContainerSandbox(id string, cfg any, toolRegistry *tools.Registry) (sandbox.Sandbox, error) {
	return NewContainerSandboxOfKind(id, model.KindContainer, cfg, toolRegistry)
}

// NewContainerSandboxOfKind builds a container-backed sandbox reporting
// the given kind, so an embedding sandbox (e.g. the notebook kind) can
// reuse the Docker lifecycle plumbing while keeping its own identity
// for tool-binding and lookup purposes.
func NewContainerSandboxOfKind(id string, kind model.SandboxKind, cfg any, toolRegistry *tools.Registry) (*ContainerSandbox, error) {
	containerCfg, ok := cfg.(model.ContainerSandboxConfig)
	if !ok {
		return nil, fmt.Errorf("%w: container sandbox requires model.ContainerSandboxConfig", model.ErrConfigError)
	}

	cs := &ContainerSandbox{
		Base:   sandbox.NewBase(id, kind, containerCfg.SandboxConfig, toolRegistry),
		config: containerCfg,
	}
	cs.SetBackend(cs)
	return cs, nil
}

func (c *ContainerSandbox) StartBackend(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	c.cli = cli

	if err := c.ensureImage(ctx); err != nil {
		return err
	}
	if err := c.createContainer(ctx); err != nil {
		return err
	}
	if err := c.startContainer(ctx); err != nil {
		return err
	}
	return nil
}

func (c *ContainerSandbox) ensureImage(ctx context.Context) error {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, c.config.Image)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("%w: %v", model.ErrEngineError, err)
	}

	log.Info().Str("image", c.config.Image).Msg("image not found locally, pulling")
	reader, pullErr := c.cli.ImagePull(ctx, c.config.Image, types.ImagePullOptions{})
	if pullErr != nil {
		return fmt.Errorf("%w: %v", model.ErrImageUnavailable, pullErr)
	}
	defer reader.Close()
	if _, copyErr := io.Copy(io.Discard, reader); copyErr != nil {
		return fmt.Errorf("%w: %v", model.ErrImageUnavailable, copyErr)
	}
	return nil
}

func (c *ContainerSandbox) createContainer(ctx context.Context) error {
	// NanoCPUs and CPUQuota/CPUPeriod are mutually exclusive ways of
	// expressing a fractional CPU limit; the engine rejects a create
	// that sets both. Quota/period is the form spec.md's resource
	// step specifies.
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:    0,
			CPUQuota:  int64(c.config.CPULimit * 100000),
			CPUPeriod: 100000,
		},
		Privileged: c.config.Privileged,
	}
	if c.config.MemoryLimit != "" {
		if bytes, err := parseMemoryLimit(c.config.MemoryLimit); err == nil {
			hostConfig.Resources.Memory = bytes
		}
	}

	for hostPath, vol := range c.config.Volumes {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   hostPath,
			Target:   vol.Bind,
			ReadOnly: vol.Mode == "ro",
		})
	}

	if !c.config.NetworkEnabled {
		hostConfig.NetworkMode = "none"
	} else if c.config.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(c.config.Network)
	}

	portBindings := nat.PortMap{}
	exposedPorts := nat.PortSet{}
	for containerPort, binding := range c.config.Ports {
		port := nat.Port(containerPort)
		exposedPorts[port] = struct{}{}
		portBindings[port] = []nat.PortBinding{{HostIP: binding.HostIP, HostPort: binding.HostPort}}
	}
	hostConfig.PortBindings = portBindings

	env := make([]string, 0, len(c.config.Env))
	for k, v := range c.config.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	cmd := c.config.Command
	if len(cmd) == 0 {
		cmd = []string{"tail", "-f", "/dev/null"}
	}

	resp, err := c.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        c.config.Image,
			Cmd:          cmd,
			Env:          env,
			WorkingDir:   c.config.WorkDir,
			Tty:          true,
			OpenStdin:    true,
			ExposedPorts: exposedPorts,
			Labels:       map[string]string{ManagedLabel: "true"},
		},
		hostConfig,
		nil,
		nil,
		fmt.Sprintf("sandbox-%s", c.ID()),
	)
	if err != nil {
		return fmt.Errorf("%w: create container: %v", model.ErrSandboxStartError, err)
	}
	c.containerID = resp.ID
	return nil
}

func (c *ContainerSandbox) startContainer(ctx context.Context) error {
	if err := c.cli.ContainerStart(ctx, c.containerID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("%w: start container: %v", model.ErrSandboxStartError, err)
	}

	deadline := time.Now().Add(startTimeout)
	for time.Now().Before(deadline) {
		info, err := c.cli.ContainerInspect(ctx, c.containerID)
		if err != nil {
			return fmt.Errorf("%w: inspect container: %v", model.ErrSandboxStartError, err)
		}
		if info.State.Running {
			return nil
		}
		time.Sleep(startPollInterval)
	}
	return fmt.Errorf("%w: container did not reach running within %s", model.ErrSandboxStartError, startTimeout)
}

func (c *ContainerSandbox) StopBackend(ctx context.Context) error {
	if c.containerID == "" {
		return nil
	}
	timeout := int(stopGrace.Seconds())
	if err := c.cli.ContainerStop(ctx, c.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("%w: %v", model.ErrEngineError, err)
	}
	return nil
}

func (c *ContainerSandbox) CleanupBackend(ctx context.Context) error {
	if c.containerID != "" {
		if c.config.RemoveOnExit {
			if err := c.cli.ContainerRemove(ctx, c.containerID, types.ContainerRemoveOptions{Force: true}); err != nil {
				log.Error().Err(err).Str("container_id", c.containerID).Msg("failed to remove container")
			}
		} else {
			timeout := int(cleanupStopGrace.Seconds())
			if err := c.cli.ContainerStop(ctx, c.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
				log.Error().Err(err).Str("container_id", c.containerID).Msg("failed to stop container during cleanup")
			}
		}
		c.containerID = ""
	}
	if c.cli != nil {
		_ = c.cli.Close()
		c.cli = nil
	}
	return nil
}

// ExecuteCommand runs a command inside the container, enforcing
// timeout as a hard wall and never raising engine errors to the
// caller.
func (c *ContainerSandbox) ExecuteCommand(ctx context.Context, command string, timeout int) (model.CommandResult, error) {
	if timeout == 0 {
		return model.CommandResult{Command: command, Status: model.ExecTimeout, ExitCode: -1}, nil
	}
	if timeout < 0 {
		timeout = defaultExecTimeout
	}
	if c.containerID == "" {
		return model.CommandResult{Command: command, Status: model.ExecError, ExitCode: -1, Stderr: "container is not running"}, nil
	}

	execConfig := types.ExecConfig{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}
	execID, err := c.cli.ContainerExecCreate(ctx, c.containerID, execConfig)
	if err != nil {
		return model.CommandResult{Command: command, Status: model.ExecError, ExitCode: -1, Stderr: err.Error()}, nil
	}

	resp, err := c.cli.ContainerExecAttach(ctx, execID.ID, types.ExecStartCheck{})
	if err != nil {
		return model.CommandResult{Command: command, Status: model.ExecError, ExitCode: -1, Stderr: err.Error()}, nil
	}
	defer resp.Close()

	type readResult struct {
		stdout, stderr string
		err            error
	}
	done := make(chan readResult, 1)
	go func() {
		stdout, stderr, readErr := demuxExecOutput(resp.Reader)
		done <- readResult{stdout: stdout, stderr: stderr, err: readErr}
	}()

	select {
	case <-time.After(time.Duration(timeout) * time.Second):
		// Best-effort kill: the exec process has no direct cancel in
		// the engine API, but closing the attached connection stops
		// our read loop and frees local resources.
		resp.Close()
		return model.CommandResult{
			Command:  command,
			Status:   model.ExecTimeout,
			ExitCode: -1,
			Stderr:   fmt.Sprintf("command timed out after %d seconds", timeout),
		}, nil
	case r := <-done:
		if r.err != nil {
			return model.CommandResult{Command: command, Status: model.ExecError, ExitCode: -1, Stderr: r.err.Error()}, nil
		}
		inspect, err := c.cli.ContainerExecInspect(ctx, execID.ID)
		if err != nil {
			return model.CommandResult{Command: command, Status: model.ExecError, ExitCode: -1, Stdout: r.stdout, Stderr: r.stderr}, nil
		}
		status := model.ExecSuccess
		if inspect.ExitCode != 0 {
			status = model.ExecError
		}
		return model.CommandResult{
			Command:  command,
			Status:   status,
			ExitCode: inspect.ExitCode,
			Stdout:   r.stdout,
			Stderr:   r.stderr,
		}, nil
	}
}

func (c *ContainerSandbox) NotebookExecute(ctx context.Context, code string, timeout int) (model.CommandResult, error) {
	return model.CommandResult{}, fmt.Errorf("%w: container sandbox has no notebook kernel", model.ErrConfigError)
}

// demuxExecOutput splits the stdcopy-framed stream returned by
// ContainerExecAttach (Tty: false) into separate stdout/stderr
// buffers. Each frame is an 8-byte header - stream type in byte 0,
// big-endian uint32 payload size in bytes 4-7 - followed by payload.
func demuxExecOutput(r io.Reader) (stdout string, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return outBuf.String(), errBuf.String(), err
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size < 0 {
			break
		}
		dst := &outBuf
		if header[0] == 2 {
			dst = &errBuf
		}
		if _, err := io.CopyN(dst, r, int64(size)); err != nil {
			return outBuf.String(), errBuf.String(), err
		}
	}
	return outBuf.String(), errBuf.String(), nil
}

// parseMemoryLimit parses an engine-native memory limit string (e.g.
// "512m", "1g", "1024k", or a bare byte count) into a byte count.
func parseMemoryLimit(limit string) (int64, error) {
	limit = strings.TrimSpace(strings.ToLower(limit))
	if limit == "" {
		return 0, fmt.Errorf("empty memory limit")
	}
	multiplier := int64(1)
	numPart := limit
	switch limit[len(limit)-1] {
	case 'k':
		multiplier = 1024
		numPart = limit[:len(limit)-1]
	case 'm':
		multiplier = 1024 * 1024
		numPart = limit[:len(limit)-1]
	case 'g':
		multiplier = 1024 * 1024 * 1024
		numPart = limit[:len(limit)-1]
	}
	value, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", limit, err)
	}
	return value * multiplier, nil
}
