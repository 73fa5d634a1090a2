// Package retention provides an optional, disabled-by-default pruning
// job for found_items. The core system is correct whether this runs or
// not (spec.md §9 leaves retention pruning an explicit open question,
// resolved here as "a separate, optional concern").
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/store"
)

type Job struct {
	st     store.Store
	maxAge time.Duration
	runner *cron.Cron
}

func NewJob(st store.Store, maxAge time.Duration) *Job {
	return &Job{st: st, maxAge: maxAge, runner: cron.New()}
}

// Start schedules the prune to run once a day. Only called when
// Tuning.RetentionEnabled is true.
func (j *Job) Start(ctx context.Context) error {
	_, err := j.runner.AddFunc("@daily", func() { j.prune(ctx) })
	if err != nil {
		return err
	}
	j.runner.Start()
	return nil
}

func (j *Job) Stop() {
	<-j.runner.Stop().Done()
}

func (j *Job) prune(ctx context.Context) {
	s, err := j.st.NewSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("retention: open session failed")
		return
	}
	defer s.Rollback(ctx)

	n, err := j.st.PruneFoundItemsOlderThan(ctx, s, j.maxAge)
	if err != nil {
		log.Warn().Err(err).Msg("retention: prune failed")
		return
	}
	if err := s.Commit(ctx); err != nil {
		log.Warn().Err(err).Msg("retention: commit failed")
		return
	}
	log.Info().Int64("deleted", n).Msg("retention: pruned old found items")
}
