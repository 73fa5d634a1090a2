package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/resilience"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

// runTaskLoop is the per-task control loop of spec.md §4.2: open a
// dedicated session, read the task, sleep until next_check, publish a
// CheckRequest, unconditionally advance next_check in the same
// UPDATE+commit (decoupled from worker latency), sleep, repeat. An
// accumulating error count reaching MaxErrors hands the task to
// enterRecovery.
// stop is the graceful-shutdown signal: checked at the top of the loop
// and during the idle sleep, but never in the middle of a tick, so a
// tick already in flight always runs to completion.
func (m *Manager) runTaskLoop(ctx context.Context, taskID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		task, err := m.readTask(ctx, taskID)
		if err != nil {
			log.Warn().Err(err).Str("task_id", taskID).Msg("scheduler: read task failed, ending loop")
			return
		}
		if task == nil || !task.IsActive {
			return
		}

		wait := time.Until(task.NextCheck)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-time.After(wait):
			}
		}

		if err := m.tick(ctx, task); err != nil {
			log.Warn().Err(err).Str("task_id", taskID).Msg("scheduler: tick failed")
			errCount, giveUp := m.recordError(ctx, taskID, err)
			if giveUp {
				log.Error().Str("task_id", taskID).Int("error_count", errCount).Msg("scheduler: task exceeded max errors, entering recovery")
				m.enterRecovery(ctx, taskID)
				return
			}
		} else {
			m.clearError(ctx, taskID)
		}
	}
}

// tick publishes exactly one CheckRequest for task and unconditionally
// advances next_check in the same session, regardless of whether the
// publish itself succeeded — forward progress (P2) must never depend
// on worker or bus latency.
func (m *Manager) tick(ctx context.Context, task *store.MonitoringTask) error {
	tickCtx, cancel := context.WithTimeout(ctx, m.cfg.TickPublishTimeout)
	defer cancel()

	s, err := m.store.NewSession(tickCtx)
	if err != nil {
		return fmt.Errorf("scheduler: open session: %w", err)
	}
	defer s.Rollback(tickCtx)

	req := bus.CheckRequest{
		TaskID:         task.TaskID,
		AppID:          task.AppID,
		MarketHashName: task.MarketHashName,
		CorrelationID:  uuid.NewString(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("scheduler: marshal check request: %w", err)
	}

	publishErr := m.publisher.Publish(tickCtx, bus.SubjectCheckRequests, payload)
	if publishErr != nil {
		publishErr = &resilience.BusUnavailableError{Cause: publishErr}
	}

	next := task.NextCheck.Add(task.CheckInterval)
	if next.Before(time.Now()) {
		next = time.Now().Add(task.CheckInterval)
	}
	if err := m.store.AdvanceNextCheck(tickCtx, s, task.TaskID, next); err != nil {
		return fmt.Errorf("scheduler: advance next_check: %w", err)
	}

	if err := s.Commit(tickCtx); err != nil {
		return fmt.Errorf("scheduler: commit tick: %w", err)
	}

	if publishErr != nil {
		observability.SchedulerTicks.WithLabelValues("bus_unavailable").Inc()
		m.recordEvent(task.TaskID, "tick", "publish failed: "+publishErr.Error())
	} else {
		observability.SchedulerTicks.WithLabelValues("published").Inc()
		m.recordEvent(task.TaskID, "published", req.CorrelationID)
	}
	m.recordEvent(task.TaskID, "advanced", next.Format(time.RFC3339))
	return publishErr
}

func (m *Manager) readTask(ctx context.Context, taskID string) (*store.MonitoringTask, error) {
	s, err := m.store.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Rollback(ctx)
	t, err := m.store.GetTask(ctx, s, taskID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (m *Manager) recordError(ctx context.Context, taskID string, cause error) (count int, giveUp bool) {
	s, err := m.store.NewSession(ctx)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("scheduler: record error: open session failed")
		return 0, false
	}
	defer s.Rollback(ctx)

	task, err := m.store.GetTask(ctx, s, taskID)
	if err != nil || task == nil {
		return 0, false
	}
	count = task.ErrorCount + 1
	if err := m.store.RecordTaskError(ctx, s, taskID, count, cause.Error()); err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("scheduler: record error: update failed")
		return count, false
	}
	if err := s.Commit(ctx); err != nil {
		return count, false
	}
	observability.TaskErrorCount.WithLabelValues(taskID).Set(float64(count))
	m.recordEvent(taskID, "error", cause.Error())
	return count, count >= m.cfg.MaxErrors
}

func (m *Manager) clearError(ctx context.Context, taskID string) {
	s, err := m.store.NewSession(ctx)
	if err != nil {
		return
	}
	defer s.Rollback(ctx)
	if err := m.store.ClearTaskError(ctx, s, taskID); err != nil {
		return
	}
	_ = s.Commit(ctx)
	observability.TaskErrorCount.WithLabelValues(taskID).Set(0)
}
