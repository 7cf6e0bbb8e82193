// Package manager implements the concurrent sandbox manager: sandbox
// lifecycle bookkeeping, a warm pool with FIFO lease semantics, and a
// janitor that reclaims dead and idle-expired sandboxes.
package manager

import (
	"context"
	"time"

	"github.com/modelscope/ms-enclave/internal/model"
)

// Interface is the manager-shaped contract shared by LocalManager and
// httpmanager.Client, so either can sit behind an API server or be
// used in-process interchangeably.
type Interface interface {
	CreateSandbox(ctx context.Context, kind model.SandboxKind, cfg any, id string) (string, error)
	GetSandboxInfo(ctx context.Context, id string) (model.SandboxInfo, error)
	ListSandboxes(ctx context.Context, statusFilter *model.SandboxStatus) ([]model.SandboxInfo, error)
	StopSandbox(ctx context.Context, id string) (bool, error)
	DeleteSandbox(ctx context.Context, id string) (bool, error)
	ExecuteTool(ctx context.Context, id, tool string, params map[string]any) (model.ToolResult, error)
	GetSandboxTools(ctx context.Context, id string) ([]map[string]any, error)
	CleanupAllSandboxes(ctx context.Context) []error
	GetStats(ctx context.Context) model.ManagerStats

	InitializePool(ctx context.Context, size int, kind model.SandboxKind, cfg model.SandboxConfig) error
	ExecuteToolInPool(ctx context.Context, tool string, params map[string]any, timeout time.Duration) (model.ToolResult, error)
}
