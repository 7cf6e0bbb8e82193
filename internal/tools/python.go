package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/modelscope/ms-enclave/internal/model"
)

func init() {
	mustRegisterBuiltin("python_executor", func() Tool { return &PythonExecutor{} })
}

// PythonExecutor stages the given code as a script inside the sandbox
// and invokes the interpreter against it, surfacing stdout/stderr/exit
// verbatim.
type PythonExecutor struct{}

func (t *PythonExecutor) Name() string        { return "python_executor" }
func (t *PythonExecutor) Description() string { return "Execute Python code in an isolated sandbox" }
func (t *PythonExecutor) RequiredKind() model.SandboxKind { return model.KindContainer }

func (t *PythonExecutor) Schema() ToolSchema {
	return ToolSchema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"code":    {Type: "string", Description: "Python code to execute"},
			"timeout": {Type: "integer", Description: "Execution timeout in seconds", Default: 30},
		},
		Required: []string{"code"},
	}
}

func (t *PythonExecutor) Execute(ctx context.Context, sc SandboxContext, params map[string]any) (model.ToolResult, error) {
	code, _ := params["code"].(string)
	if strings.TrimSpace(code) == "" {
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecError, Error: "No code provided"}, nil
	}
	timeout := 30
	if v, ok := params["timeout"].(float64); ok {
		timeout = int(v)
	} else if v, ok := params["timeout"].(int); ok {
		timeout = v
	}

	scriptPath := fmt.Sprintf("/tmp/exec_script_%s.py", uuid.New().String())
	defer func() {
		_, _ = sc.ExecuteCommand(ctx, fmt.Sprintf("rm -f %s", scriptPath), 5)
	}()

	if err := sc.WriteFile(ctx, scriptPath, code); err != nil {
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecError, Error: fmt.Sprintf("failed to stage script: %v", err)}, nil
	}

	result, err := sc.ExecuteCommand(ctx, fmt.Sprintf("python %s", scriptPath), timeout)
	if err != nil {
		return model.ToolResult{ToolName: t.Name(), Status: model.ExecError, Error: fmt.Sprintf("execution failed: %v", err)}, nil
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
		}
		errMsg = result.Stderr
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

