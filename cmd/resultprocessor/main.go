// Command resultprocessor consumes check.results, evaluates filters,
// de-duplicates and notifies on new matches.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/config"
	"github.com/Tyrannozavr/steamParser/internal/notifier"
	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/resultprocessor"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

func main() {
	observability.InitLogging("resultprocessor", os.Getenv("PRETTY_LOG") == "1")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("resultprocessor: config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewPostgresStore(ctx, store.DefaultPostgresConfig(cfg.PostgresDSN))
	if err != nil {
		log.Fatal().Err(err).Msg("resultprocessor: postgres connect failed")
	}
	defer st.Close()

	rawBus, err := bus.NewJetStreamBus(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("resultprocessor: nats connect failed")
	}
	defer rawBus.Close()

	var n notifier.Notifier = notifier.LogNotifier{}
	if os.Getenv("NOTIFY_WEBHOOK_RESOLVER") != "" {
		n = notifier.NewWebhookNotifier(func(ownerID string) (string, bool) {
			// resolution of an owner's webhook endpoint is deployment
			// specific; LogNotifier is the shipped default.
			return "", false
		})
	}

	proc := resultprocessor.New(st, n, 30*time.Second)

	if err := rawBus.Subscribe(ctx, bus.SubjectCheckResults, proc.Handle); err != nil {
		log.Fatal().Err(err).Msg("resultprocessor: subscribe failed")
	}

	log.Info().Msg("resultprocessor: started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("resultprocessor: shutting down")
	cancel()
}
