package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/sandbox"
	"github.com/modelscope/ms-enclave/internal/tools"
)

var _ Interface = (*LocalManager)(nil)

// LocalManager owns every sandbox created in this process: lifecycle,
// the warm pool, and the janitor sweep. It is the in-process
// implementation of Interface; httpmanager.Client is the remote one.
type LocalManager struct {
	registry     *sandbox.Registry
	toolRegistry *tools.Registry
	cfg          model.SandboxManagerConfig

	sandboxesMu sync.RWMutex
	sandboxes   map[string]sandbox.Sandbox

	poolMu          sync.Mutex
	poolCond        *sync.Cond
	idle            []string
	busy            map[string]struct{}
	poolInitialized bool
	poolKind        model.SandboxKind
	poolConfig      model.SandboxConfig

	janitorCancel context.CancelFunc
	janitorDone   chan struct{}

	startedAt time.Time

	lastJanitorRunMu sync.Mutex
	lastJanitorRun   time.Time
}

// New constructs a manager bound to the given sandbox and tool
// registries. Call Start to launch the janitor.
func New(cfg model.SandboxManagerConfig, sandboxRegistry *sandbox.Registry, toolRegistry *tools.Registry) *LocalManager {
	m := &LocalManager{
		registry:     sandboxRegistry,
		toolRegistry: toolRegistry,
		cfg:          cfg,
		sandboxes:    make(map[string]sandbox.Sandbox),
		busy:         make(map[string]struct{}),
		startedAt:    time.Now(),
	}
	m.poolCond = sync.NewCond(&m.poolMu)
	return m
}

// Start launches the janitor goroutine.
func (m *LocalManager) Start(ctx context.Context) error {
	janitorCtx, cancel := context.WithCancel(ctx)
	m.janitorCancel = cancel
	m.janitorDone = make(chan struct{})
	go m.runJanitor(janitorCtx)
	return nil
}

// Stop halts the janitor and tears down every sandbox.
func (m *LocalManager) Stop(ctx context.Context) error {
	if m.janitorCancel != nil {
		m.janitorCancel()
		<-m.janitorDone
	}
	errs := m.CleanupAllSandboxes(ctx)
	if len(errs) > 0 {
		return fmt.Errorf("%w: %d sandbox(es) failed to clean up", model.ErrEngineError, len(errs))
	}
	return nil
}

// CreateSandbox builds and starts a sandbox of the given kind,
// recording it under its id on success.
func (m *LocalManager) CreateSandbox(ctx context.Context, kind model.SandboxKind, cfg any, id string) (string, error) {
	if id == "" {
		id = model.NewSandboxID()
	}

	sb, err := m.registry.Create(kind, id, cfg, m.toolRegistry)
	if err != nil {
		return "", err
	}
	if err := sb.Start(ctx); err != nil {
		_ = sb.Cleanup(ctx)
		return "", model.NewStartError(fmt.Sprintf("sandbox %s failed to start", id), err)
	}

	m.sandboxesMu.Lock()
	m.sandboxes[id] = sb
	m.sandboxesMu.Unlock()

	return id, nil
}

// GetSandbox returns the live sandbox handle, for internal use (tool
// dispatch, tests) where a snapshot DTO isn't enough.
func (m *LocalManager) GetSandbox(ctx context.Context, id string) (sandbox.Sandbox, error) {
	m.sandboxesMu.RLock()
	defer m.sandboxesMu.RUnlock()
	sb, ok := m.sandboxes[id]
	if !ok {
		return nil, fmt.Errorf("%w: sandbox %q", model.ErrNotFound, id)
	}
	return sb, nil
}

// GetSandboxInfo returns a point-in-time snapshot of a sandbox.
func (m *LocalManager) GetSandboxInfo(ctx context.Context, id string) (model.SandboxInfo, error) {
	sb, err := m.GetSandbox(ctx, id)
	if err != nil {
		return model.SandboxInfo{}, err
	}
	return sb.Info(), nil
}

// ListSandboxes returns a snapshot of every sandbox, optionally
// filtered by status.
func (m *LocalManager) ListSandboxes(ctx context.Context, statusFilter *model.SandboxStatus) ([]model.SandboxInfo, error) {
	m.sandboxesMu.RLock()
	defer m.sandboxesMu.RUnlock()

	infos := make([]model.SandboxInfo, 0, len(m.sandboxes))
	for _, sb := range m.sandboxes {
		info := sb.Info()
		if statusFilter != nil && info.Status != *statusFilter {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// StopSandbox gracefully halts a sandbox without removing it.
func (m *LocalManager) StopSandbox(ctx context.Context, id string) (bool, error) {
	sb, err := m.GetSandbox(ctx, id)
	if err != nil {
		return false, err
	}
	if err := sb.Stop(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteSandbox removes a sandbox's pool membership (if any), makes a
// best-effort stop, guarantees cleanup, then forgets it. Deleting an
// id that no longer exists returns false with no error, so repeated
// deletes are safe to call blindly.
func (m *LocalManager) DeleteSandbox(ctx context.Context, id string) (bool, error) {
	sb, err := m.GetSandbox(ctx, id)
	if err != nil {
		return false, nil
	}

	m.removeFromPool(id)

	if err := sb.Stop(ctx); err != nil {
		log.Warn().Err(err).Str("sandbox_id", id).Msg("stop before delete reported an error")
	}
	_ = sb.Cleanup(ctx)

	m.sandboxesMu.Lock()
	delete(m.sandboxes, id)
	m.sandboxesMu.Unlock()

	return true, nil
}

// ExecuteTool dispatches a bound tool against a sandbox without
// holding the manager's own lock across the call.
func (m *LocalManager) ExecuteTool(ctx context.Context, id, tool string, params map[string]any) (model.ToolResult, error) {
	sb, err := m.GetSandbox(ctx, id)
	if err != nil {
		return model.ToolResult{}, err
	}
	return sb.ExecuteTool(ctx, tool, params)
}

// GetSandboxTools returns the OpenAI-function schemas bound to a
// sandbox.
func (m *LocalManager) GetSandboxTools(ctx context.Context, id string) ([]map[string]any, error) {
	sb, err := m.GetSandbox(ctx, id)
	if err != nil {
		return nil, err
	}
	return sb.ToolSchemas(), nil
}

// CleanupAllSandboxes deletes every tracked sandbox, collecting
// per-item errors. A call over an empty manager returns nil.
func (m *LocalManager) CleanupAllSandboxes(ctx context.Context) []error {
	m.sandboxesMu.RLock()
	ids := make([]string, 0, len(m.sandboxes))
	for id := range m.sandboxes {
		ids = append(ids, id)
	}
	m.sandboxesMu.RUnlock()

	var errs []error
	for _, id := range ids {
		if _, err := m.DeleteSandbox(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("sandbox %s: %w", id, err))
		}
	}
	return errs
}

// GetStats summarizes the manager's current state.
func (m *LocalManager) GetStats(ctx context.Context) model.ManagerStats {
	m.sandboxesMu.RLock()
	byStatus := make(map[model.SandboxStatus]int)
	for _, sb := range m.sandboxes {
		byStatus[sb.Status()]++
	}
	m.sandboxesMu.RUnlock()

	m.lastJanitorRunMu.Lock()
	lastRun := m.lastJanitorRun
	m.lastJanitorRunMu.Unlock()

	return model.ManagerStats{
		TotalByStatus:   byStatus,
		Pool:            m.poolStats(),
		Uptime:          time.Since(m.startedAt),
		CleanupInterval: m.cfg.CleanupInterval,
		LastJanitorRun:  lastRun,
	}
}
