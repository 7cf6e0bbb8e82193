// Package sandbox defines the sandbox contract, its lifecycle base,
// and the registry that maps a SandboxKind to a concrete
// implementation factory.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/tools"
)

// Sandbox is an isolated execution environment with a lifecycle and
// bound tools.
type Sandbox interface {
	tools.SandboxContext

	ID() string
	Kind() model.SandboxKind
	Status() model.SandboxStatus
	Info() model.SandboxInfo

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Cleanup(ctx context.Context) error

	ExecuteTool(ctx context.Context, name string, params map[string]any) (model.ToolResult, error)
	BoundTools() []string
	ToolSchemas() []map[string]any
}

// Factory constructs a new Sandbox for the given id and config. cfg is
// the kind-specific config type (model.ContainerSandboxConfig,
// model.NotebookSandboxConfig, or plain model.SandboxConfig for
// model.KindDummy); each factory asserts the shape it expects.
type Factory func(id string, cfg any, toolRegistry *tools.Registry) (Sandbox, error)

// Registry maps a SandboxKind to a construction factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[model.SandboxKind]Factory
}

// NewRegistry returns an empty sandbox registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[model.SandboxKind]Factory)}
}

// Register adds a factory under kind. Duplicate kinds fail with
// model.ErrConfigError.
func (r *Registry) Register(kind model.SandboxKind, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("%w: sandbox kind %q already registered", model.ErrConfigError, kind)
	}
	r.factories[kind] = factory
	return nil
}

// Create builds a new Sandbox of the given kind.
func (r *Registry) Create(kind model.SandboxKind, id string, cfg any, toolRegistry *tools.Registry) (Sandbox, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sandbox kind %q", model.ErrConfigError, kind)
	}
	return factory(id, cfg, toolRegistry)
}

// Kinds returns all registered sandbox kinds.
func (r *Registry) Kinds() []model.SandboxKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]model.SandboxKind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}

// DefaultSandboxRegistry is populated by each sandbox kind's init().
var DefaultSandboxRegistry = NewRegistry()
