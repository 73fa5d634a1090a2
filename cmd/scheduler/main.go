// Command scheduler runs the Monitoring Scheduler: leader election,
// per-task control loops, and the observability-only proxy sweeper and
// stale-loop monitor.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/config"
	"github.com/Tyrannozavr/steamParser/internal/coordination"
	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/retention"
	"github.com/Tyrannozavr/steamParser/internal/scheduler"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

func main() {
	observability.InitLogging("scheduler", os.Getenv("PRETTY_LOG") == "1")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.RunMigrations(cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("scheduler: migrations failed")
	}

	st, err := store.NewPostgresStore(ctx, store.DefaultPostgresConfig(cfg.PostgresDSN))
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: postgres connect failed")
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	rawBus, err := bus.NewJetStreamBus(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: nats connect failed")
	}
	defer rawBus.Close()
	publisher := bus.NewBufferedPublisher(rawBus)
	go publisher.StartFlusher(ctx, cfg.SchedulerLeaderTTL)

	schedCfg := scheduler.DefaultConfig()
	mgr := scheduler.NewManager(st, publisher, schedCfg)

	elector := coordination.NewLeaderElector(rdb, st, cfg.NodeID, cfg.SchedulerLeaderTTL)
	elector.SetCallbacks(
		func() { mgr.Start(ctx) },
		func() { mgr.Stop() },
	)
	elector.Start(ctx)
	defer elector.Stop()

	sweeper := coordination.NewProxySweeper(st, cfg.ProxyCoolOffBase, func(unblocked int64, stats *store.ProxyStats) {
		if unblocked > 0 {
			log.Info().Int64("unblocked", unblocked).Msg("scheduler: proxy sweep unblocked proxies")
		}
	})
	if err := sweeper.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("scheduler: proxy sweeper failed to start")
	}
	defer sweeper.Stop()

	staleMonitor := coordination.NewStaleLoopMonitor(st, schedCfg.StaleLoopCheckInterval, nil)
	go staleMonitor.Run(ctx)

	if cfg.Tuning.RetentionEnabled {
		retentionJob := retention.NewJob(st, cfg.Tuning.RetentionMaxAge)
		if err := retentionJob.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("scheduler: retention job failed to start")
		} else {
			defer retentionJob.Stop()
		}
	}

	log.Info().Str("node_id", cfg.NodeID).Msg("scheduler: started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("scheduler: shutting down")
	cancel()
}
