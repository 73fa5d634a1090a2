// Package resultprocessor implements the Result Processor: consume a
// CheckResult, evaluate each listing against its task's FilterDoc, and
// notify-once on a genuinely new match. The unique constraint on
// (task_id, fingerprint) plus insert-then-notify-only-if-inserted is
// the system's sole de-duplication mechanism (L1) — there is no
// separate "seen set" to keep consistent with it.
package resultprocessor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/filters"
	"github.com/Tyrannozavr/steamParser/internal/fingerprint"
	"github.com/Tyrannozavr/steamParser/internal/notifier"
	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

type Processor struct {
	store    store.Store
	notifier notifier.Notifier
	timeout  time.Duration
}

func New(st store.Store, n notifier.Notifier, timeout time.Duration) *Processor {
	return &Processor{store: st, notifier: n, timeout: timeout}
}

// Handle is the bus.Handler for check.results.
func (p *Processor) Handle(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var result bus.CheckResult
	if err := json.Unmarshal(payload, &result); err != nil {
		log.Error().Err(err).Msg("resultprocessor: malformed check result, dropping")
		return nil
	}

	s, err := p.store.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("resultprocessor: open session: %w", err)
	}
	defer s.Rollback(ctx)

	task, err := p.store.GetTask(ctx, s, result.TaskID)
	if err != nil {
		return fmt.Errorf("resultprocessor: get task: %w", err)
	}
	if task == nil || !task.IsActive {
		// Task was deactivated/deleted after the check was dispatched;
		// nothing to do, ack the message.
		return nil
	}

	// total_checks is incremented here, not by the scheduler tick, so a
	// check only counts once its result has actually been processed.
	if err := p.store.IncrementTotalChecks(ctx, s, task.TaskID); err != nil {
		return fmt.Errorf("resultprocessor: increment total_checks: %w", err)
	}

	if !result.Success {
		if err := s.Commit(ctx); err != nil {
			return fmt.Errorf("resultprocessor: commit: %w", err)
		}
		return nil // a failed check carries no listings to evaluate
	}

	var newMatches []store.FoundItem
	for _, listing := range result.Listings {
		if !filters.Matches(task.Filters, listing) {
			continue
		}
		fp := fingerprint.Compute(task.TaskID, listing)
		item := &store.FoundItem{TaskID: task.TaskID, Fingerprint: fp, Listing: listing}
		inserted, err := p.store.InsertFoundItemIfNew(ctx, s, item)
		if err != nil {
			return fmt.Errorf("resultprocessor: insert found item: %w", err)
		}
		if inserted {
			newMatches = append(newMatches, *item)
		}
	}

	if err := s.Commit(ctx); err != nil {
		return fmt.Errorf("resultprocessor: commit: %w", err)
	}

	if len(newMatches) > 0 {
		observability.ResultProcessorMatches.WithLabelValues(task.TaskID).Add(float64(len(newMatches)))
	}

	for _, m := range newMatches {
		match := m
		go p.notifier.Notify(context.Background(), task.OwnerID, match)
	}

	return nil
}
