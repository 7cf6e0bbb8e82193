package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelscope/ms-enclave/internal/model"
)

// runJanitor ticks at cfg.CleanupInterval, purging dead sandboxes and
// reaping idle non-pool sandboxes past cfg.IdleTTL. It never touches
// busy pool members, and idle pool members are exempt from TTL
// reaping — only sandboxes outside the pool age out.
func (m *LocalManager) runJanitor(ctx context.Context) {
	defer close(m.janitorDone)

	interval := m.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *LocalManager) sweep(ctx context.Context) {
	m.sandboxesMu.RLock()
	type candidate struct {
		id       string
		status   model.SandboxStatus
		lastUsed time.Time
	}
	candidates := make([]candidate, 0, len(m.sandboxes))
	for id, sb := range m.sandboxes {
		info := sb.Info()
		candidates = append(candidates, candidate{id: id, status: info.Status, lastUsed: info.LastUsed})
	}
	m.sandboxesMu.RUnlock()

	m.poolMu.Lock()
	idleMembers := make(map[string]struct{}, len(m.idle))
	for _, id := range m.idle {
		idleMembers[id] = struct{}{}
	}
	busyMembers := make(map[string]struct{}, len(m.busy))
	for id := range m.busy {
		busyMembers[id] = struct{}{}
	}
	m.poolMu.Unlock()

	now := time.Now()
	for _, c := range candidates {
		if _, busy := busyMembers[c.id]; busy {
			continue
		}
		_, idle := idleMembers[c.id]
		switch {
		case c.status == model.StatusError || c.status == model.StatusStopped:
			if _, err := m.DeleteSandbox(ctx, c.id); err != nil {
				log.Error().Err(err).Str("sandbox_id", c.id).Msg("janitor failed to purge dead sandbox")
			}
		case !idle && m.cfg.IdleTTL > 0 && now.Sub(c.lastUsed) > m.cfg.IdleTTL:
			if _, err := m.DeleteSandbox(ctx, c.id); err != nil {
				log.Error().Err(err).Str("sandbox_id", c.id).Msg("janitor failed to reap idle sandbox")
			}
		}
	}

	m.lastJanitorRunMu.Lock()
	m.lastJanitorRun = now
	m.lastJanitorRunMu.Unlock()
}
