package tools

import (
	"context"

	"github.com/modelscope/ms-enclave/internal/model"
)

func init() {
	mustRegisterBuiltin("shell_executor", func() Tool { return &ShellExecutor{} })
}

// ShellExecutor runs a shell command and returns stdout/stderr/exit.
type ShellExecutor struct{}

func (t *ShellExecutor) Name() string                     { return "shell_executor" }
func (t *ShellExecutor) Description() string               { return "Run a shell command in the sandbox" }
func (t *ShellExecutor) RequiredKind() model.SandboxKind { return model.KindContainer }

func (t *ShellExecutor) Schema() ToolSchema {
	return ToolSchema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"command": {Type: "string", Description: "Shell command to run"},
			"timeout": {Type: "integer", Description: "Execution timeout in seconds", Default: 30},
		},
		Required: []string{"command"},
	}
}

func (t *ShellExecutor) Execute(ctx context.Context, sc SandboxContext, params map[string]any) (model.ToolResult, error) {
	command, _ := params["command"].(string)
	if command == "" {
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecError, Error: "No command provided"}, nil
	}
	timeout := 30
	if v, ok := params["timeout"].(float64); ok {
		timeout = int(v)
	} else if v, ok := params["timeout"].(int); ok {
		timeout = v
	}

	result, err := sc.ExecuteCommand(ctx, command, timeout)
	if err != nil {
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecError, Error: err.Error()}, nil
	}

	status := model.ExecSuccess
	if result.Status != model.ExecSuccess || result.ExitCode != 0 {
		status = model.ExecError
	}

	return model.ToolResult{
		ToolName: t.Name(),
		Status:   status,
		Output:   result.Stdout,
		Error:    result.Stderr,
	}, nil
}
