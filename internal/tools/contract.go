// Package tools defines the tool contract and the built-in tool
// descriptors dispatched against a sandbox context.
package tools

import (
	"context"

	"github.com/modelscope/ms-enclave/internal/model"
)

// SandboxContext is the capability surface a sandbox injects into a
// tool's Execute call. It is implemented by each concrete sandbox kind
// (its internal/sandbox.Backend), which internal/sandbox.Base passes
// to every bound tool.
type SandboxContext interface {
	ExecuteCommand(ctx context.Context, command string, timeout int) (model.CommandResult, error)

	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	AppendFile(ctx context.Context, path, content string) error
	DeleteFile(ctx context.Context, path string) error
	ListFiles(ctx context.Context, path string) ([]string, error)

	// NotebookExecute forwards code to a long-lived kernel. Non-notebook
	// sandboxes return model.ErrConfigError.
	NotebookExecute(ctx context.Context, code string, timeout int) (model.CommandResult, error)
}

// SchemaProperty is one property of a JSON-Schema-shaped parameter
// descriptor.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolSchema is a JSON-Schema-shaped parameter descriptor: type=object,
// a properties map, and a required list.
type ToolSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// ToOpenAIFunction renders a ToolSchema in "OpenAI function" shape.
func ToOpenAIFunction(name, description string, schema ToolSchema) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        name,
			"description": description,
			"parameters":  schema,
		},
	}
}

// Tool is a named, stateless descriptor executable within a sandbox
// context.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	RequiredKind() model.SandboxKind
	Execute(ctx context.Context, sc SandboxContext, params map[string]any) (model.ToolResult, error)
}

// Factory constructs a new Tool instance.
type Factory func() Tool
