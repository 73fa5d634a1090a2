// Package worker implements the stateless Parsing Worker: consume a
// CheckRequest, lease a proxy, invoke the Fetcher, classify the
// outcome, and publish a CheckResult. Workers carry no task state of
// their own and can be scaled horizontally without coordination.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/fetcher"
	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/proxy"
	"github.com/Tyrannozavr/steamParser/internal/resilience"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

type Worker struct {
	id            string
	fetcher       fetcher.Fetcher
	proxies       *proxy.Manager
	publisher     bus.Publisher
	requeuePolicy resilience.RetryPolicy
}

// New builds a Worker. requeuePolicy governs the bounded-attempt
// requeue-with-exponential-delay path for rate-limited, upstream 5xx,
// and transport failures (spec.md §4.4 step 2) — callers normally pass
// resilience.WorkerRequeuePolicy().
func New(id string, f fetcher.Fetcher, proxies *proxy.Manager, publisher bus.Publisher, requeuePolicy resilience.RetryPolicy) *Worker {
	return &Worker{id: id, fetcher: f, proxies: proxies, publisher: publisher, requeuePolicy: requeuePolicy}
}

// Handle is the bus.Handler for check.requests. Returning an error naks
// the message for redelivery (used only for ProxyUnavailable, which is
// transient pool exhaustion). Rate-limited, upstream 5xx, and transport
// failures are requeued by publishing a fresh CheckRequest with
// attempt+1, up to requeuePolicy's cap; every other classified outcome
// is reported as a CheckResult and the message is acked, since a parse
// failure or an exhausted retry budget is the worker's answer, not a
// delivery failure.
func (w *Worker) Handle(ctx context.Context, payload []byte) error {
	var req bus.CheckRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Error().Err(err).Msg("worker: malformed check request, dropping")
		return nil
	}

	lease, err := w.proxies.Acquire(ctx, w.id)
	if err != nil {
		var unavailable *resilience.ProxyUnavailableError
		if errors.As(err, &unavailable) {
			observability.WorkerFetchOutcomes.WithLabelValues("proxy_unavailable").Inc()
			return err // nak, worker will retry on redelivery
		}
		observability.WorkerFetchOutcomes.WithLabelValues("store_error").Inc()
		return w.publishFailure(ctx, req, "store_error", err)
	}

	listings, fetchErr := w.fetcher.Fetch(ctx, lease.Proxy.Endpoint, req.AppID, req.MarketHashName)

	switch {
	case fetchErr == nil:
		if err := lease.ReportSuccess(ctx); err != nil {
			log.Warn().Err(err).Msg("worker: report success failed")
		}
		observability.WorkerFetchOutcomes.WithLabelValues("success").Inc()
		return w.publishSuccess(ctx, req, listings)

	case isRateLimited(fetchErr):
		if err := lease.ReportRateLimit(ctx); err != nil {
			log.Warn().Err(err).Msg("worker: report rate limit failed")
		}
		observability.WorkerFetchOutcomes.WithLabelValues("rate_limited").Inc()
		return w.requeueOrFail(ctx, req, "rate_limited", fetchErr)

	case isTransient(fetchErr):
		if err := lease.ReportTransportFailure(ctx); err != nil {
			log.Warn().Err(err).Msg("worker: report transport failure failed")
		}
		observability.WorkerFetchOutcomes.WithLabelValues("transient_fetch_error").Inc()
		return w.requeueOrFail(ctx, req, "transient_fetch_error", fetchErr)

	default: // parse error
		if err := lease.ReportSuccess(ctx); err != nil {
			log.Warn().Err(err).Msg("worker: report success after parse error failed")
		}
		observability.WorkerFetchOutcomes.WithLabelValues("parse_error").Inc()
		return w.publishFailure(ctx, req, "parse_error", fetchErr)
	}
}

func isRateLimited(err error) bool {
	var e *resilience.RateLimitedError
	return errors.As(err, &e)
}

func isTransient(err error) bool {
	var e *resilience.TransientFetchError
	return errors.As(err, &e)
}

func (w *Worker) publishSuccess(ctx context.Context, req bus.CheckRequest, listings []store.Listing) error {
	result := bus.CheckResult{
		TaskID:        req.TaskID,
		CorrelationID: req.CorrelationID,
		Success:       true,
		Listings:      listings,
	}
	return w.publish(ctx, result)
}

// requeueOrFail is the bounded retry path for rate-limited, upstream
// 5xx, and transport failures: requeue the request with attempt+1
// after an exponential delay, up to requeuePolicy's attempt cap; once
// exhausted, publish a failed CheckResult instead.
func (w *Worker) requeueOrFail(ctx context.Context, req bus.CheckRequest, kind string, cause error) error {
	if w.requeuePolicy.Exhausted(req.Attempt) {
		return w.publishFailure(ctx, req, kind, cause)
	}

	delay := w.requeuePolicy.Delay(req.Attempt)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	next := req
	next.Attempt++
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("worker: marshal requeued check request: %w", err)
	}
	return w.publisher.Publish(ctx, bus.SubjectCheckRequests, payload)
}

func (w *Worker) publishFailure(ctx context.Context, req bus.CheckRequest, kind string, cause error) error {
	result := bus.CheckResult{
		TaskID:        req.TaskID,
		CorrelationID: req.CorrelationID,
		Success:       false,
		ErrorKind:     kind,
		ErrorMessage:  cause.Error(),
	}
	return w.publish(ctx, result)
}

func (w *Worker) publish(ctx context.Context, result bus.CheckResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("worker: marshal check result: %w", err)
	}
	return w.publisher.Publish(ctx, bus.SubjectCheckResults, payload)
}
