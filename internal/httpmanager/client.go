// Package httpmanager is the manager.Interface implementation that
// talks to a remote server, for callers that want the manager
// contract across an HTTP boundary instead of in-process.
package httpmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/modelscope/ms-enclave/internal/manager"
	"github.com/modelscope/ms-enclave/internal/model"
)

var _ manager.Interface = (*Client)(nil)

// defaultCallTimeout is applied per call when the caller's context
// doesn't already carry a deadline.
const defaultCallTimeout = 30 * time.Second

// Client implements manager.Interface over one pooled *http.Client. It
// caches no sandbox state; the server remains the sole source of
// truth.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client pointed at baseURL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
			},
		},
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultCallTimeout)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", model.ErrConfigError, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", model.ErrEngineError, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrEngineError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", model.ErrNotFound, method, path)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s %s: %s", model.ErrEngineError, method, path, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) CreateSandbox(ctx context.Context, kind model.SandboxKind, cfg any, id string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/sandboxes", map[string]any{
		"kind":   kind,
		"config": cfg,
		"id":     id,
	}, &out)
	return out.ID, err
}

func (c *Client) GetSandboxInfo(ctx context.Context, id string) (model.SandboxInfo, error) {
	var out model.SandboxInfo
	err := c.do(ctx, http.MethodGet, "/sandboxes/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) ListSandboxes(ctx context.Context, statusFilter *model.SandboxStatus) ([]model.SandboxInfo, error) {
	path := "/sandboxes"
	if statusFilter != nil {
		path += "?status=" + url.QueryEscape(string(*statusFilter))
	}
	var out []model.SandboxInfo
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) StopSandbox(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/stop", struct{}{}, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) DeleteSandbox(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodDelete, "/sandboxes/"+url.PathEscape(id), nil, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) ExecuteTool(ctx context.Context, id, tool string, params map[string]any) (model.ToolResult, error) {
	var out model.ToolResult
	err := c.do(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/tools/"+url.PathEscape(tool), map[string]any{
		"parameters": params,
	}, &out)
	return out, err
}

func (c *Client) GetSandboxTools(ctx context.Context, id string) ([]map[string]any, error) {
	var out []map[string]any
	err := c.do(ctx, http.MethodGet, "/sandboxes/"+url.PathEscape(id)+"/tools", nil, &out)
	return out, err
}

func (c *Client) CleanupAllSandboxes(ctx context.Context) []error {
	if err := c.do(ctx, http.MethodPost, "/sandboxes/cleanup", struct{}{}, nil); err != nil {
		return []error{err}
	}
	return nil
}

func (c *Client) GetStats(ctx context.Context) model.ManagerStats {
	var out model.ManagerStats
	_ = c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out
}

func (c *Client) InitializePool(ctx context.Context, size int, kind model.SandboxKind, cfg model.SandboxConfig) error {
	return c.do(ctx, http.MethodPost, "/pool/init", map[string]any{
		"size":   size,
		"kind":   kind,
		"config": cfg,
	}, nil)
}

func (c *Client) ExecuteToolInPool(ctx context.Context, tool string, params map[string]any, timeout time.Duration) (model.ToolResult, error) {
	var out model.ToolResult
	err := c.do(ctx, http.MethodPost, "/pool/tools/"+url.PathEscape(tool), map[string]any{
		"parameters": params,
		"timeout":    timeout.Seconds(),
	}, &out)
	return out, err
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
