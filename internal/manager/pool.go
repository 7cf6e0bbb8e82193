package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelscope/ms-enclave/internal/model"
)

// poolFanoutLimit bounds how many sandboxes InitializePool creates
// concurrently. A plain buffered-channel semaphore stands in for an
// errgroup dependency the rest of the stack doesn't otherwise pull in.
const poolFanoutLimit = 8

// InitializePool creates size sandboxes of the given kind/config up
// front and marks them idle. It rejects a second call with
// model.ErrConfigError; a partial failure rolls back every member it
// managed to create.
func (m *LocalManager) InitializePool(ctx context.Context, size int, kind model.SandboxKind, cfg model.SandboxConfig) error {
	m.poolMu.Lock()
	if m.poolInitialized {
		m.poolMu.Unlock()
		return fmt.Errorf("%w: pool already initialized", model.ErrConfigError)
	}
	m.poolInitialized = true
	m.poolKind = kind
	m.poolConfig = cfg
	m.poolMu.Unlock()

	type outcome struct {
		id  string
		err error
	}
	results := make([]outcome, size)
	sem := make(chan struct{}, poolFanoutLimit)
	var wg sync.WaitGroup

	for i := 0; i < size; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			id, err := m.CreateSandbox(ctx, kind, cfg, "")
			results[idx] = outcome{id: id, err: err}
		}(i)
	}
	wg.Wait()

	var created []string
	var failures int
	for _, r := range results {
		if r.err != nil {
			failures++
			continue
		}
		created = append(created, r.id)
	}

	if failures > 0 {
		for _, id := range created {
			if _, err := m.DeleteSandbox(ctx, id); err != nil {
				log.Error().Err(err).Str("sandbox_id", id).Msg("pool rollback failed to delete sandbox")
			}
		}
		m.poolMu.Lock()
		m.poolInitialized = false
		m.poolMu.Unlock()
		return fmt.Errorf("%w: %d of %d pool members failed to start", model.ErrPoolInitError, failures, size)
	}

	m.poolMu.Lock()
	m.idle = append(m.idle, created...)
	m.poolMu.Unlock()
	m.poolCond.Broadcast()

	return nil
}

// ExecuteToolInPool leases an idle pool sandbox, runs the tool, and
// returns the sandbox to idle (or replaces it, if it didn't survive).
// A caller with no idle sandbox available waits up to timeout; a
// cancelled caller context never counts against the pool.
func (m *LocalManager) ExecuteToolInPool(ctx context.Context, tool string, params map[string]any, timeout time.Duration) (model.ToolResult, error) {
	id, err := m.leaseIdle(ctx, timeout)
	if err != nil {
		return model.ToolResult{}, err
	}

	defer m.releaseLease(ctx, id)
	return m.ExecuteTool(ctx, id, tool, params)
}

// leaseIdle pops an id from the idle queue, moving it to busy. It
// blocks on poolCond until an entry is available, the timeout elapses,
// or ctx is cancelled.
func (m *LocalManager) leaseIdle(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	// sync.Cond has no native deadline; a timer goroutine wakes the
	// waiter so the loop below can re-check ctx/deadline instead of
	// blocking forever on an idle pool.
	stopTimer := make(chan struct{})
	defer close(stopTimer)
	go func() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		select {
		case <-t.C:
			m.poolMu.Lock()
			m.poolCond.Broadcast()
			m.poolMu.Unlock()
		case <-stopTimer:
		case <-ctx.Done():
			m.poolMu.Lock()
			m.poolCond.Broadcast()
			m.poolMu.Unlock()
		}
	}()

	m.poolMu.Lock()
	defer m.poolMu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: no idle pool sandbox within %s", model.ErrTimeout, timeout)
			}
			return "", err
		}
		if len(m.idle) > 0 {
			id := m.idle[0]
			m.idle = m.idle[1:]
			m.busy[id] = struct{}{}
			return id, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: no idle pool sandbox within %s", model.ErrTimeout, timeout)
		}
		m.poolCond.Wait()
	}
}

// releaseLease returns a sandbox to idle if it survived execution,
// otherwise drops it and asynchronously replaces it with a fresh
// member of the same kind/config.
func (m *LocalManager) releaseLease(ctx context.Context, id string) {
	sb, err := m.GetSandbox(ctx, id)
	survived := err == nil && sb.Status() == model.StatusRunning

	m.poolMu.Lock()
	delete(m.busy, id)
	if survived {
		m.idle = append(m.idle, id)
	}
	m.poolMu.Unlock()
	m.poolCond.Broadcast()

	if survived {
		return
	}

	go func() {
		replaceCtx := context.Background()
		if _, err := m.DeleteSandbox(replaceCtx, id); err != nil {
			log.Error().Err(err).Str("sandbox_id", id).Msg("failed to delete dead pool member")
		}
		newID, err := m.CreateSandbox(replaceCtx, m.poolKind, m.poolConfig, "")
		if err != nil {
			log.Error().Err(err).Msg("failed to replace dead pool member")
			return
		}
		m.poolMu.Lock()
		m.idle = append(m.idle, newID)
		m.poolMu.Unlock()
		m.poolCond.Broadcast()
	}()
}

// removeFromPool strips id from the idle queue and busy set, so
// DeleteSandbox can evict a pool member directly.
func (m *LocalManager) removeFromPool(id string) {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()
	delete(m.busy, id)
	for i, entry := range m.idle {
		if entry == id {
			m.idle = append(m.idle[:i], m.idle[i+1:]...)
			break
		}
	}
}

func (m *LocalManager) poolStats() model.PoolStats {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()
	return model.PoolStats{
		Size:        len(m.idle) + len(m.busy),
		Idle:        len(m.idle),
		Busy:        len(m.busy),
		Initialized: m.poolInitialized,
	}
}
