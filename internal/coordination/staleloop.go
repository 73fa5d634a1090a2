package coordination

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/store"
)

// StaleLoopMonitor watches every active task's next_check against the
// wall clock and surfaces a loop that has stopped advancing (a P2
// forward-progress violation) as a log line and an optional onStale
// callback, rather than
// only as a property a test can check. Repurposed from the teacher's
// agent-heartbeat liveness check (coordination/agent_monitor.go) to
// task-loop liveness.
type StaleLoopMonitor struct {
	st       store.Store
	interval time.Duration
	onStale  func(taskID string, overdue time.Duration)
}

func NewStaleLoopMonitor(st store.Store, interval time.Duration, onStale func(string, time.Duration)) *StaleLoopMonitor {
	return &StaleLoopMonitor{st: st, interval: interval, onStale: onStale}
}

func (m *StaleLoopMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *StaleLoopMonitor) check(ctx context.Context) {
	s, err := m.st.NewSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("coordination: stale loop check: open session failed")
		return
	}
	defer s.Rollback(ctx)

	tasks, err := m.st.ListActiveTasks(ctx, s)
	if err != nil {
		log.Warn().Err(err).Msg("coordination: stale loop check: list active tasks failed")
		return
	}

	now := time.Now()
	for _, t := range tasks {
		threshold := 2 * t.CheckInterval
		overdue := now.Sub(t.NextCheck)
		if overdue > threshold {
			if m.onStale != nil {
				m.onStale(t.TaskID, overdue)
			}
			log.Warn().Str("task_id", t.TaskID).Dur("overdue", overdue).Msg("coordination: task loop has not advanced")
		}
	}
}
