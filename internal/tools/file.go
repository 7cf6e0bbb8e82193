package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelscope/ms-enclave/internal/model"
)

func init() {
	mustRegisterBuiltin("file_operation", func() Tool { return &FileOperation{} })
}

// FileOperation performs read/write/append/delete/list against the
// sandbox filesystem, keyed on a path.
type FileOperation struct{}

func (t *FileOperation) Name() string                     { return "file_operation" }
func (t *FileOperation) Description() string               { return "Read, write, append, delete, or list sandbox files" }
func (t *FileOperation) RequiredKind() model.SandboxKind { return model.KindContainer }

func (t *FileOperation) Schema() ToolSchema {
	return ToolSchema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"operation": {
				Type:        "string",
				Description: "Operation to perform",
				Enum:        []string{"read", "write", "append", "delete", "list"},
			},
			"file_path": {Type: "string", Description: "Path within the sandbox filesystem"},
			"content":   {Type: "string", Description: "Content to write or append (required for write/append)"},
		},
		Required: []string{"operation", "file_path"},
	}
}

func (t *FileOperation) Execute(ctx context.Context, sc SandboxContext, params map[string]any) (model.ToolResult, error) {
	operation, _ := params["operation"].(string)
	path, _ := params["file_path"].(string)
	content, _ := params["content"].(string)

	if path == "" {
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecError, Error: "file_path is required"}, nil
	}

	switch operation {
	case "read":
		data, err := sc.ReadFile(ctx, path)
		if err != nil {
			return errResult(t.Name(), err), nil
		}
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecSuccess, Output: data}, nil

	case "write":
		if err := sc.WriteFile(ctx, path, content); err != nil {
			return errResult(t.Name(), err), nil
		}
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecSuccess, Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil

	case "append":
		if err := sc.AppendFile(ctx, path, content); err != nil {
			return errResult(t.Name(), err), nil
		}
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecSuccess, Output: fmt.Sprintf("appended %d bytes to %s", len(content), path)}, nil

	case "delete":
		if err := sc.DeleteFile(ctx, path); err != nil {
			return errResult(t.Name(), err), nil
		}
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecSuccess, Output: fmt.Sprintf("deleted %s", path)}, nil

	case "list":
		entries, err := sc.ListFiles(ctx, path)
		if err != nil {
			return errResult(t.Name(), err), nil
		}
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecSuccess, Output: strings.Join(entries, "\n")}, nil

	default:
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecError, Error: fmt.Sprintf("unknown operation %q", operation)}, nil
	}
}

func errResult(name string, err error) model.ToolResult {
	return model.ToolResult{ToolName: name, Status: model.ExecError, Error: err.Error()}
}
