package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/modelscope/ms-enclave/internal/model"
)

// Registry is a process-wide table of tool factories keyed by name.
// The registry never runs tools; execution happens through a sandbox
// so the SandboxContext is injected at call time.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry. Managers take a *Registry
// explicitly (rather than reaching for a package-level singleton) so
// tests can substitute one.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a tool factory under name. Duplicate names fail with
// model.ErrConfigError.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: tool %q already registered", model.ErrConfigError, name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a new Tool by name.
func (r *Registry) Create(name string) (Tool, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tool %q", model.ErrNotFound, name)
	}
	return factory(), nil
}

// List returns the names of all registered tools.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the OpenAI-function-shaped schema for a registered
// tool.
func (r *Registry) Schema(name string) (map[string]any, error) {
	tool, err := r.Create(name)
	if err != nil {
		return nil, err
	}
	return ToOpenAIFunction(tool.Name(), tool.Description(), tool.Schema()), nil
}

// DefaultRegistry is populated by each built-in tool's init(). It is
// the registry cmd/enclaved wires into the manager by default; unit
// tests that want isolation build their own via NewRegistry and
// register only what they need.
var DefaultRegistry = NewRegistry()

func mustRegisterBuiltin(name string, factory Factory) {
	if err := DefaultRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}
