package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/resilience"
)

// enterRecovery retries bringing a task back under control loop
// management using the shared exponential backoff policy (60s base,
// doubling, capped at 10 minutes, 10 attempts), per spec.md §4.2. A
// task that survives recovery rejoins the normal per-task loop with
// its error count reset; one that exhausts every attempt is
// deactivated and surfaced for operator attention.
func (m *Manager) enterRecovery(ctx context.Context, taskID string) {
	policy := resilience.DefaultRetryPolicy()

	go func() {
		for attempt := 0; !policy.Exhausted(attempt); attempt++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(policy.Delay(attempt)):
			}

			task, err := m.readTask(ctx, taskID)
			if err != nil || task == nil || !task.IsActive {
				return
			}

			if err := m.tick(ctx, task); err == nil {
				m.clearError(ctx, taskID)
				log.Info().Str("task_id", taskID).Int("attempt", attempt+1).Msg("scheduler: task recovered")
				// The crashed loop's registry entry is still present;
				// drop it once that loop has exited so startLoop spawns
				// a fresh one instead of treating the task as running.
				m.mu.Lock()
				if ls, ok := m.loops[taskID]; ok {
					select {
					case <-ls.done:
						delete(m.loops, taskID)
					default:
					}
				}
				m.mu.Unlock()
				m.startLoop(ctx, taskID)
				observability.TaskRecoveryAttempts.WithLabelValues(taskID, "recovered").Inc()
				m.recordEvent(taskID, "recovered", "")
				return
			}
			log.Warn().Str("task_id", taskID).Int("attempt", attempt+1).Msg("scheduler: recovery attempt failed")
			observability.TaskRecoveryAttempts.WithLabelValues(taskID, "failed").Inc()
		}

		log.Error().Str("task_id", taskID).Msg("scheduler: recovery exhausted, deactivating task")
		observability.TaskRecoveryAttempts.WithLabelValues(taskID, "exhausted").Inc()
		m.deactivateAfterRecoveryFailure(ctx, taskID)
	}()
}

func (m *Manager) deactivateAfterRecoveryFailure(ctx context.Context, taskID string) {
	s, err := m.store.NewSession(ctx)
	if err != nil {
		return
	}
	defer s.Rollback(ctx)
	if err := m.store.SetTaskActive(ctx, s, taskID, false); err != nil {
		return
	}
	_ = s.Commit(ctx)

	m.mu.Lock()
	delete(m.loops, taskID)
	m.mu.Unlock()
	m.recordEvent(taskID, "deactivated", "recovery exhausted")
}
