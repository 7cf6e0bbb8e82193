package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/tools"
)

// Backend is implemented by a concrete sandbox kind (container,
// notebook, dummy). Base delegates the engine-specific half of the
// lifecycle to it, and injects it as the tools.SandboxContext every
// bound tool executes against.
type Backend interface {
	tools.SandboxContext

	StartBackend(ctx context.Context) error
	StopBackend(ctx context.Context) error
	// CleanupBackend must be idempotent and must not return an error
	// that masks a caller's primary error; failures are logged inside
	// the implementation.
	CleanupBackend(ctx context.Context) error
}

// Base provides the lifecycle state machine, tool binding, and the
// execute_tool dispatch pipeline shared by every sandbox kind.
type Base struct {
	id   string
	kind model.SandboxKind

	toolRegistry *tools.Registry
	toolsConfig  map[string]map[string]any

	mu         sync.Mutex
	status     model.SandboxStatus
	createdAt  time.Time
	lastUsed   time.Time
	metadata   map[string]string
	boundTools map[string]tools.Tool

	backend Backend
}

// NewBase constructs the shared lifecycle state for a sandbox. The
// concrete sandbox kind must call SetBackend before Start.
func NewBase(id string, kind model.SandboxKind, cfg model.SandboxConfig, toolRegistry *tools.Registry) *Base {
	now := time.Now()
	return &Base{
		id:           id,
		kind:         kind,
		toolRegistry: toolRegistry,
		toolsConfig:  cfg.ToolsConfig,
		status:       model.StatusInitializing,
		createdAt:    now,
		lastUsed:     now,
		metadata:     make(map[string]string),
		boundTools:   make(map[string]tools.Tool),
	}
}

// SetBackend wires the concrete engine-specific implementation. Must
// be called once, before Start.
func (b *Base) SetBackend(backend Backend) {
	b.backend = backend
}

func (b *Base) ID() string              { return b.id }
func (b *Base) Kind() model.SandboxKind { return b.kind }

func (b *Base) Status() model.SandboxStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) setStatus(status model.SandboxStatus) {
	b.mu.Lock()
	b.status = status
	b.mu.Unlock()
}

func (b *Base) setError(reason string) {
	b.mu.Lock()
	b.status = model.StatusError
	b.metadata["error"] = reason
	b.mu.Unlock()
}

// Info returns a snapshot of the sandbox's current state.
func (b *Base) Info() model.SandboxInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	metadata := make(map[string]string, len(b.metadata))
	for k, v := range b.metadata {
		metadata[k] = v
	}
	tools := make([]string, 0, len(b.boundTools))
	for name := range b.boundTools {
		tools = append(tools, name)
	}
	return model.SandboxInfo{
		ID:        b.id,
		Kind:      b.kind,
		Status:    b.status,
		CreatedAt: b.createdAt,
		LastUsed:  b.lastUsed,
		Metadata:  metadata,
		Tools:     tools,
	}
}

// Start runs the full lifecycle: initializing -> (backend boot) ->
// (tool binding) -> running. Any failure rolls back via
// CleanupBackend and transitions to error.
func (b *Base) Start(ctx context.Context) error {
	b.setStatus(model.StatusInitializing)

	if err := b.backend.StartBackend(ctx); err != nil {
		b.setError(err.Error())
		_ = b.backend.CleanupBackend(ctx)
		return model.NewStartError("backend start failed", err)
	}

	if err := b.bindTools(); err != nil {
		b.setError(err.Error())
		_ = b.backend.CleanupBackend(ctx)
		return model.NewStartError("tool binding failed", err)
	}

	b.setStatus(model.StatusRunning)
	return nil
}

// Stop requests a graceful halt of the backend.
func (b *Base) Stop(ctx context.Context) error {
	if b.Status() == model.StatusStopped {
		return nil
	}
	b.setStatus(model.StatusStopping)
	if err := b.backend.StopBackend(ctx); err != nil {
		b.setError(err.Error())
		return fmt.Errorf("%w: %v", model.ErrEngineError, err)
	}
	b.setStatus(model.StatusStopped)
	return nil
}

// Cleanup releases all resources. Idempotent; never raises.
func (b *Base) Cleanup(ctx context.Context) error {
	if err := b.backend.CleanupBackend(ctx); err != nil {
		log.Error().Err(err).Str("sandbox_id", b.id).Msg("cleanup reported an error")
	}
	b.setStatus(model.StatusCleanup)
	return nil
}

func (b *Base) bindTools() error {
	for name, params := range b.toolsConfig {
		tool, err := b.toolRegistry.Create(name)
		if err != nil {
			return fmt.Errorf("%w: bind tool %q: %v", model.ErrConfigError, name, err)
		}
		if tool.RequiredKind() != b.kind {
			return fmt.Errorf("%w: tool %q requires kind %q, sandbox is %q", model.ErrConfigError, name, tool.RequiredKind(), b.kind)
		}
		b.mu.Lock()
		b.boundTools[name] = tool
		b.mu.Unlock()
		_ = params // per-instance params from the config are not passed to the tool; Execute sees only each call's params
	}
	return nil
}

// ExecuteTool dispatches a bound tool's Execute against the backend,
// rejecting unbound tools and non-running sandboxes. An error returned
// by the tool itself is converted into an ExecError ToolResult.
func (b *Base) ExecuteTool(ctx context.Context, name string, params map[string]any) (model.ToolResult, error) {
	b.mu.Lock()
	if b.status != model.StatusRunning {
		status := b.status
		b.mu.Unlock()
		return model.ToolResult{}, fmt.Errorf("%w: sandbox %q is %q, not running", model.ErrConfigError, b.id, status)
	}
	tool, ok := b.boundTools[name]
	if !ok {
		b.mu.Unlock()
		return model.ToolResult{}, fmt.Errorf("%w: tool %q not bound to sandbox %q", model.ErrNotFound, name, b.id)
	}
	now := time.Now()
	if now.After(b.lastUsed) {
		b.lastUsed = now
	}
	b.mu.Unlock()

	result, err := tool.Execute(ctx, b.backend, params)
	if err != nil {
		return model.ToolResult{ToolName: name, Status: model.ExecError, Error: err.Error()}, nil
	}
	return result, nil
}

// BoundTools returns the names of tools bound at start.
func (b *Base) BoundTools() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.boundTools))
	for name := range b.boundTools {
		names = append(names, name)
	}
	return names
}

// ToolSchemas returns the OpenAI-function-shaped schemas of bound tools.
func (b *Base) ToolSchemas() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	schemas := make([]map[string]any, 0, len(b.boundTools))
	for _, tool := range b.boundTools {
		schemas = append(schemas, tools.ToOpenAIFunction(tool.Name(), tool.Description(), tool.Schema()))
	}
	return schemas
}

// touch updates last-used without running a tool; used by sandboxes
// that perform work outside the tool pipeline (DummySandbox's
// ExecuteCommand).
func (b *Base) touch() {
	b.mu.Lock()
	now := time.Now()
	if now.After(b.lastUsed) {
		b.lastUsed = now
	}
	b.mu.Unlock()
}
