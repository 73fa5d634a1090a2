package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// reconcilePoll periodically reconciles the in-memory loop registry
// against the durable set of active tasks: starts a loop for any task
// the registry doesn't know about yet (created or reactivated by an
// admin process, which has no direct handle on this scheduler's
// in-memory Manager), and stops loops for tasks that are no longer
// active or no longer exist. OnTaskCreated/OnTaskActivated/
// OnTaskDeactivated/OnTaskDeleted remain a same-process fast path (used
// by tests and by an admin server embedded in the same binary); this
// poll is what makes a split admin/scheduler deployment correct without
// requiring a direct RPC between them, mirroring the teacher's
// RehydrateQueue-on-election plus background poller shape
// (scheduler/scheduler.go Start/poller).
func (m *Manager) reconcilePoll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcileOnce(ctx)
		}
	}
}

func (m *Manager) reconcileOnce(ctx context.Context) {
	s, err := m.store.NewSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("scheduler: reconcile: open session failed")
		return
	}
	tasks, err := m.store.ListActiveTasks(ctx, s)
	s.Rollback(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("scheduler: reconcile: list active tasks failed")
		return
	}

	active := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		active[t.TaskID] = true
		m.startLoop(ctx, t.TaskID)
	}

	m.mu.Lock()
	var stale []string
	for id := range m.loops {
		if !active[id] {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.OnTaskDeactivated(id)
	}
}
