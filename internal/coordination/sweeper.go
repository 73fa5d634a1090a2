package coordination

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/store"
)

// ProxySweeper periodically unblocks proxies whose cool-off has
// expired and emits pool-health metrics. It is never required for
// correctness — Acquire's own leasability predicate already excludes
// expired blocks — this exists purely so block recovery is observable
// between acquisitions, mirroring the teacher's LockJanitor's role as
// non-critical cleanup (coordination/janitor.go).
type ProxySweeper struct {
	st       store.Store
	interval time.Duration
	onSweep  func(unblocked int64, stats *store.ProxyStats)

	cronRunner *cron.Cron
}

func NewProxySweeper(st store.Store, interval time.Duration, onSweep func(int64, *store.ProxyStats)) *ProxySweeper {
	return &ProxySweeper{st: st, interval: interval, onSweep: onSweep, cronRunner: cron.New()}
}

func (s *ProxySweeper) Start(ctx context.Context) error {
	spec := "@every " + s.interval.String()
	_, err := s.cronRunner.AddFunc(spec, func() { s.sweep(ctx) })
	if err != nil {
		return err
	}
	s.cronRunner.Start()
	return nil
}

func (s *ProxySweeper) Stop() {
	<-s.cronRunner.Stop().Done()
}

func (s *ProxySweeper) sweep(ctx context.Context) {
	sess, err := s.st.NewSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("coordination: proxy sweep: open session failed")
		return
	}
	defer sess.Rollback(ctx)

	unblocked, err := s.st.UnblockExpiredProxies(ctx, sess)
	if err != nil {
		log.Warn().Err(err).Msg("coordination: proxy sweep: unblock failed")
		return
	}
	stats, err := s.st.GetProxyStats(ctx, sess)
	if err != nil {
		log.Warn().Err(err).Msg("coordination: proxy sweep: stats failed")
		return
	}
	if err := sess.Commit(ctx); err != nil {
		log.Warn().Err(err).Msg("coordination: proxy sweep: commit failed")
		return
	}
	if s.onSweep != nil {
		s.onSweep(unblocked, stats)
	}
}
