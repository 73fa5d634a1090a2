// Command worker runs a stateless Parsing Worker replica, consuming
// check.requests and publishing check.results. Horizontally scaled,
// no coordination between replicas required.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/config"
	"github.com/Tyrannozavr/steamParser/internal/fetcher"
	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/proxy"
	"github.com/Tyrannozavr/steamParser/internal/resilience"
	"github.com/Tyrannozavr/steamParser/internal/store"
	"github.com/Tyrannozavr/steamParser/internal/worker"
)

func main() {
	observability.InitLogging("worker", os.Getenv("PRETTY_LOG") == "1")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("worker: config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewPostgresStore(ctx, store.DefaultPostgresConfig(cfg.PostgresDSN))
	if err != nil {
		log.Fatal().Err(err).Msg("worker: postgres connect failed")
	}
	defer st.Close()

	rawBus, err := bus.NewJetStreamBus(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("worker: nats connect failed")
	}
	defer rawBus.Close()
	publisher := bus.NewBufferedPublisher(rawBus)
	go publisher.StartFlusher(ctx, 5*time.Second)

	backoff := resilience.DefaultRetryPolicy()
	proxies := proxy.NewManager(st, cfg.ProxyLeaseTTL, backoff)
	f := fetcher.NewHTTPFetcher(30*time.Second, cfg.Tuning.FetchRateLimitPerSecond)

	workerID := cfg.NodeID + "-" + uuid.NewString()[:8]
	w := worker.New(workerID, f, proxies, publisher, resilience.WorkerRequeuePolicy())

	if err := rawBus.Subscribe(ctx, bus.SubjectCheckRequests, w.Handle); err != nil {
		log.Fatal().Err(err).Msg("worker: subscribe failed")
	}

	log.Info().Str("worker_id", workerID).Msg("worker: started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("worker: shutting down")
	cancel()
}
