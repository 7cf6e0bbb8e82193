package tools

import (
	"context"

	"github.com/modelscope/ms-enclave/internal/model"
)

func init() {
	mustRegisterBuiltin("notebook_executor", func() Tool { return &NotebookExecutor{} })
}

// NotebookExecutor forwards code to the sandbox's kernel over its
// websocket connection, preserving variable state across calls.
type NotebookExecutor struct{}

func (t *NotebookExecutor) Name() string        { return "notebook_executor" }
func (t *NotebookExecutor) Description() string { return "Execute Python code in a persistent notebook kernel" }
func (t *NotebookExecutor) RequiredKind() model.SandboxKind { return model.KindContainerNotebook }

func (t *NotebookExecutor) Schema() ToolSchema {
	return ToolSchema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"code": {Type: "string", Description: "Python code to execute"},
		},
		Required: []string{"code"},
	}
}

func (t *NotebookExecutor) Execute(ctx context.Context, sc SandboxContext, params map[string]any) (model.ToolResult, error) {
	code, _ := params["code"].(string)
	if code == "" {
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecError, Error: "No code provided"}, nil
	}

	result, err := sc.NotebookExecute(ctx, code, 30)
	if err != nil {
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecError, Error: err.Error()}, nil
	}

	status := model.ExecSuccess
	errMsg := ""
	switch result.Status {
	case model.ExecTimeout:
		status = model.ExecTimeout
		errMsg = result.Stderr
	case model.ExecSuccess:
		if result.ExitCode != 0 {
			status = model.ExecError
			errMsg = result.Stderr
		}
	default:
		status = model.ExecError
		errMsg = result.Stderr
	}

	return model.ToolResult{
		ToolName: t.Name(),
		Status:   status,
		Output:   result.Stdout,
		Error:    errMsg,
	}, nil
}
