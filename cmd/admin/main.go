// Command admin is the minimal, command-style operator surface: run
// the HTTP admin API, apply migrations, or issue a bearer token.
// Exit codes: 0 success, 1 usage error, 2 runtime error.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/api"
	"github.com/Tyrannozavr/steamParser/internal/auth"
	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/config"
	"github.com/Tyrannozavr/steamParser/internal/idempotency"
	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/proxy"
	"github.com/Tyrannozavr/steamParser/internal/resilience"
	"github.com/Tyrannozavr/steamParser/internal/scheduler"
	"github.com/Tyrannozavr/steamParser/internal/store"
	"github.com/Tyrannozavr/steamParser/internal/timeline"
)

func main() {
	observability.InitLogging("admin", os.Getenv("PRETTY_LOG") == "1")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(runServe())
	case "migrate":
		os.Exit(runMigrate())
	case "issue-token":
		os.Exit(runIssueToken(os.Args[2:]))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <serve|migrate|issue-token> [args]")
}

func runMigrate() int {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("admin: config load failed")
		return 2
	}
	if err := store.RunMigrations(cfg.PostgresDSN); err != nil {
		log.Error().Err(err).Msg("admin: migration failed")
		return 2
	}
	log.Info().Msg("admin: migrations applied")
	return 0
}

func runIssueToken(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: admin issue-token <owner_id> [role]")
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("admin: config load failed")
		return 2
	}
	if cfg.AdminJWTKey == "" {
		log.Error().Msg("admin: ADMIN_JWT_KEY is required to issue tokens")
		return 2
	}
	role := "owner"
	if len(args) > 1 {
		role = args[1]
	}
	issuer := auth.NewTokenIssuer([]byte(cfg.AdminJWTKey), cfg.AdminJWTIssuer, 24*time.Hour)
	token, err := issuer.Issue(args[0], role)
	if err != nil {
		log.Error().Err(err).Msg("admin: issue token failed")
		return 2
	}
	fmt.Println(token)
	return 0
}

func runServe() int {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("admin: config load failed")
		return 2
	}
	if cfg.AdminJWTKey == "" {
		log.Error().Msg("admin: ADMIN_JWT_KEY is required to serve")
		return 2
	}

	ctx := context.Background()

	st, err := store.NewPostgresStore(ctx, store.DefaultPostgresConfig(cfg.PostgresDSN))
	if err != nil {
		log.Error().Err(err).Msg("admin: postgres connect failed")
		return 2
	}
	defer st.Close()

	backoff := resilience.DefaultRetryPolicy()
	proxies := proxy.NewManager(st, cfg.ProxyLeaseTTL, backoff)

	schedCfg := scheduler.DefaultConfig()
	// The admin process does not run control loops itself; it only
	// notifies the scheduler's registry shape so handlers compile
	// against the same Manager type used by cmd/scheduler. In a
	// single-binary deployment this would be the same in-process
	// Manager the scheduler leader runs; split here for clarity.
	noopPublisher := noopBusPublisher{}
	sched := scheduler.NewManager(st, noopPublisher, schedCfg)

	tl := timeline.NewStore(200)
	idemStore := idempotency.NewStore(nil)
	issuer := auth.NewTokenIssuer([]byte(cfg.AdminJWTKey), cfg.AdminJWTIssuer, 24*time.Hour)

	srv := api.NewServer(st, proxies, sched, tl, idemStore, issuer)

	eventsBus, err := bus.NewJetStreamBus(cfg.NatsURL)
	if err != nil {
		log.Warn().Err(err).Msg("admin: nats connect failed, live timeline stream disabled")
	} else {
		defer eventsBus.Close()
		err := eventsBus.Subscribe(ctx, bus.SubjectSchedulerEvents, func(_ context.Context, payload []byte) error {
			var e timeline.Event
			if err := json.Unmarshal(payload, &e); err != nil {
				return nil // malformed event, drop rather than redeliver forever
			}
			srv.IngestEvent(e)
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Msg("admin: subscribe to scheduler events failed")
		}
	}

	log.Info().Str("addr", cfg.AdminAddr).Msg("admin: serving")
	if err := http.ListenAndServe(cfg.AdminAddr, srv.Handler()); err != nil {
		log.Error().Err(err).Msg("admin: server stopped")
		return 2
	}
	return 0
}

type noopBusPublisher struct{}

func (noopBusPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	return nil
}
func (noopBusPublisher) Close() error { return nil }
