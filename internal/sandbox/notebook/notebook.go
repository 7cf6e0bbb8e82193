// Package notebook extends the container sandbox with a long-lived
// Jupyter kernel-gateway process, giving callers cross-call variable
// persistence over a websocket execute protocol.
package notebook

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/sandbox"
	"github.com/modelscope/ms-enclave/internal/sandbox/container"
	"github.com/modelscope/ms-enclave/internal/tools"
)

const (
	kernelGatewayImage = model.DefaultNotebookImage
	gatewayPort        = "8888/tcp"

	bootPollInterval = 1 * time.Second
	bootTimeout      = 30 * time.Second

	defaultExecuteTimeout = 30
)

// kernelGatewayDockerfile is vendored so the image can be built on
// first use without a separate asset pipeline.
const kernelGatewayDockerfile = `FROM python:3.11-slim
RUN pip install --no-cache-dir jupyter_kernel_gateway jupyter_client ipykernel
EXPOSE 8888
CMD ["jupyter", "kernelgateway", "--KernelGatewayApp.ip=0.0.0.0", \
     "--KernelGatewayApp.port=8888", \
     "--KernelGatewayApp.allow_origin=*"]
`

func init() {
	_ = sandbox.DefaultSandboxRegistry.Register(model.KindContainerNotebook, NewNotebookSandbox)
}

// NotebookSandbox wraps a container.ContainerSandbox, adding the
// kernel-gateway boot sequence and the websocket execute protocol.
type NotebookSandbox struct {
	*container.ContainerSandbox

	config model.NotebookSandboxConfig

	httpBase string
	wsBase   string
	kernelID string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewNotebookSandbox is a sandbox.Factory for model.KindContainerNotebook.
func NewNotebookSandbox(id string, cfg any, toolRegistry *tools.Registry) (sandbox.Sandbox, error) {
	notebookCfg, ok := cfg.(model.NotebookSandboxConfig)
	if !ok {
		return nil, fmt.Errorf("%w: notebook sandbox requires model.NotebookSandboxConfig", model.ErrConfigError)
	}
	if notebookCfg.Image == "" {
		notebookCfg.Image = kernelGatewayImage
	}
	if notebookCfg.Ports == nil {
		notebookCfg.Ports = map[string]model.PortBinding{}
	}
	notebookCfg.Ports[gatewayPort] = model.PortBinding{HostIP: notebookCfg.Host, HostPort: fmt.Sprintf("%d", notebookCfg.Port)}
	notebookCfg.NetworkEnabled = true

	cs, err := container.NewContainerSandboxOfKind(id, model.KindContainerNotebook, notebookCfg.ContainerSandboxConfig, toolRegistry)
	if err != nil {
		return nil, err
	}

	ns := &NotebookSandbox{
		ContainerSandbox: cs,
		config:           notebookCfg,
	}
	ns.SetBackend(ns)
	return ns, nil
}

// StartBackend builds the kernel-gateway image if needed, starts the
// container, probes for gateway liveness, creates a kernel, and dials
// the channels websocket.
func (n *NotebookSandbox) StartBackend(ctx context.Context) error {
	if err := n.ensureGatewayImage(ctx); err != nil {
		return err
	}
	if err := n.ContainerSandbox.StartBackend(ctx); err != nil {
		return err
	}

	host := n.config.Host
	if host == "" {
		host = "127.0.0.1"
	}
	n.httpBase = fmt.Sprintf("http://%s:%d", host, n.config.Port)
	n.wsBase = fmt.Sprintf("ws://%s:%d", host, n.config.Port)

	if err := n.waitForGateway(ctx); err != nil {
		return fmt.Errorf("%w: %v", model.ErrSandboxStartError, err)
	}
	kernelID, err := n.createKernel(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrSandboxStartError, err)
	}
	n.kernelID = kernelID

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("%s/api/kernels/%s/channels", n.wsBase, n.kernelID), nil)
	if err != nil {
		return fmt.Errorf("%w: dial kernel channel: %v", model.ErrSandboxStartError, err)
	}
	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	return nil
}

// ensureGatewayImage builds the kernel-gateway image from the vendored
// dockerfile if it is not already present, streaming build output to
// the logger. It uses its own short-lived engine client since the
// build must happen before the container (and its client) exist.
func (n *NotebookSandbox) ensureGatewayImage(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrEngineError, err)
	}
	defer cli.Close()

	if _, _, err := cli.ImageInspectWithRaw(ctx, n.config.Image); err == nil {
		return nil
	}

	tarBuf, err := buildContextTar(kernelGatewayDockerfile)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrImageUnavailable, err)
	}

	resp, err := cli.ImageBuild(ctx, tarBuf, types.ImageBuildOptions{
		Tags:       []string{n.config.Image},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrImageUnavailable, err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		log.Info().Str("image", n.config.Image).Msg(scanner.Text())
	}
	return nil
}

func (n *NotebookSandbox) waitForGateway(ctx context.Context) error {
	deadline := time.Now().Add(bootTimeout)
	httpClient := &http.Client{Timeout: bootPollInterval}
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.httpBase+"/api/kernels", nil)
		if err == nil {
			if resp, err := httpClient.Do(req); err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}
		time.Sleep(bootPollInterval)
	}
	return fmt.Errorf("kernel gateway did not become live within %s", bootTimeout)
}

func (n *NotebookSandbox) createKernel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.httpBase+"/api/kernels", bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("create kernel: status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// jupyterMessage mirrors the wire-format v5 envelope closely enough to
// send execute_request and decode the handful of reply types this
// protocol needs.
type jupyterMessage struct {
	Header       jupyterHeader  `json:"header"`
	ParentHeader jupyterHeader  `json:"parent_header"`
	Metadata     map[string]any `json:"metadata"`
	Content      map[string]any `json:"content"`
}

type jupyterHeader struct {
	MsgID    string `json:"msg_id,omitempty"`
	Username string `json:"username,omitempty"`
	Session  string `json:"session,omitempty"`
	MsgType  string `json:"msg_type,omitempty"`
	Version  string `json:"version,omitempty"`
}

// NotebookExecute sends code to the live kernel and assembles a
// CommandResult from the frames correlated to this call's msg_id.
// Concurrent calls on one sandbox are serialized, since the kernel and
// websocket are shared state.
func (n *NotebookSandbox) NotebookExecute(ctx context.Context, code string, timeout int) (model.CommandResult, error) {
	if timeout <= 0 {
		timeout = defaultExecuteTimeout
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return model.CommandResult{Command: code, Status: model.ExecError, ExitCode: -1, Stderr: "kernel channel is not connected"}, nil
	}

	msgID := uuid.New().String()
	session := uuid.New().String()
	req := jupyterMessage{
		Header: jupyterHeader{
			MsgID:    msgID,
			Username: "enclave",
			Session:  session,
			MsgType:  "execute_request",
			Version:  "5.0",
		},
		ParentHeader: jupyterHeader{},
		Metadata:     map[string]any{},
		Content: map[string]any{
			"code":             code,
			"silent":           false,
			"store_history":    true,
			"user_expressions": map[string]any{},
			"allow_stdin":      false,
		},
	}
	if err := n.conn.WriteJSON(req); err != nil {
		return model.CommandResult{Command: code, Status: model.ExecError, ExitCode: -1, Stderr: err.Error()}, nil
	}

	deadline := time.Now().Add(time.Duration(timeout) * time.Second)
	var output strings.Builder
	hasError := false

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return model.CommandResult{Command: code, Status: model.ExecTimeout, ExitCode: -1, Stderr: output.String()}, nil
		}
		_ = n.conn.SetReadDeadline(time.Now().Add(remaining))

		var msg jupyterMessage
		if err := n.conn.ReadJSON(&msg); err != nil {
			if !time.Now().Before(deadline) {
				return model.CommandResult{Command: code, Status: model.ExecTimeout, ExitCode: -1, Stderr: output.String()}, nil
			}
			return model.CommandResult{Command: code, Status: model.ExecError, ExitCode: -1, Stderr: err.Error()}, nil
		}
		if msg.ParentHeader.MsgID != msgID {
			continue
		}

		switch msg.Header.MsgType {
		case "stream":
			if text, ok := msg.Content["text"].(string); ok {
				output.WriteString(text)
			}
		case "execute_result":
			if data, ok := msg.Content["data"].(map[string]any); ok {
				if text, ok := data["text/plain"].(string); ok {
					output.WriteString(text)
				}
			}
		case "error":
			hasError = true
			if traceback, ok := msg.Content["traceback"].([]any); ok {
				lines := make([]string, 0, len(traceback))
				for _, l := range traceback {
					if s, ok := l.(string); ok {
						lines = append(lines, s)
					}
				}
				output.WriteString(strings.Join(lines, "\n"))
			}
		case "status":
			if state, ok := msg.Content["execution_state"].(string); ok && state == "idle" {
				exitCode := 0
				status := model.ExecSuccess
				if hasError {
					exitCode = 1
					status = model.ExecError
				}
				result := model.CommandResult{Command: code, Status: status, ExitCode: exitCode, Stdout: output.String()}
				if hasError {
					result.Stderr = output.String()
				}
				return result, nil
			}
		}
	}
}

// CleanupBackend closes the websocket, deletes the kernel, and then
// tears down the underlying container. Each step is independent so one
// failure does not mask the next.
func (n *NotebookSandbox) CleanupBackend(ctx context.Context) error {
	n.mu.Lock()
	conn := n.conn
	n.conn = nil
	n.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kernel channel")
		}
	}

	if n.kernelID != "" && n.httpBase != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/api/kernels/%s", n.httpBase, n.kernelID), nil)
		if err == nil {
			if resp, err := http.DefaultClient.Do(req); err == nil {
				resp.Body.Close()
			} else {
				log.Error().Err(err).Str("kernel_id", n.kernelID).Msg("failed to delete kernel")
			}
		}
		n.kernelID = ""
	}

	return n.ContainerSandbox.CleanupBackend(ctx)
}

// buildContextTar wraps the vendored dockerfile text in a single-file
// tar stream, the build context shape the engine's image build API
// expects.
func buildContextTar(dockerfile string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	header := &tar.Header{
		Name: "Dockerfile",
		Size: int64(len(dockerfile)),
		Mode: 0644,
	}
	if err := tw.WriteHeader(header); err != nil {
		return nil, err
	}
	if _, err := tw.Write([]byte(dockerfile)); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
