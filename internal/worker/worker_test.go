package worker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/fetcher"
	"github.com/Tyrannozavr/steamParser/internal/proxy"
	"github.com/Tyrannozavr/steamParser/internal/resilience"
	"github.com/Tyrannozavr/steamParser/internal/store"
	"github.com/Tyrannozavr/steamParser/internal/worker"
)

type fakeFetcher struct {
	listings []store.Listing
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, proxyEndpoint string, appID int, marketHashName string) ([]store.Listing, error) {
	return f.listings, f.err
}

// recordingPublisher records every publish by subject, so a test can
// tell a requeued CheckRequest (check.requests) apart from a terminal
// CheckResult (check.results).
type recordingPublisher struct {
	requests []bus.CheckRequest
	results  []bus.CheckResult
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	switch subject {
	case bus.SubjectCheckRequests:
		var r bus.CheckRequest
		if err := json.Unmarshal(payload, &r); err == nil {
			p.requests = append(p.requests, r)
		}
	case bus.SubjectCheckResults:
		var r bus.CheckResult
		if err := json.Unmarshal(payload, &r); err == nil {
			p.results = append(p.results, r)
		}
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// testRequeuePolicy matches resilience.WorkerRequeuePolicy's shape
// (3 attempts, doubling) but with millisecond delays so tests don't
// actually wait on the real 1s/2s/4s schedule.
func testRequeuePolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		BaseDelay:   time.Millisecond,
		Factor:      2.0,
		Cap:         4 * time.Millisecond,
		MaxAttempts: 3,
	}
}

func newTestWorker(t *testing.T, f fetcher.Fetcher) (*worker.Worker, *recordingPublisher, *store.MemoryStore) {
	ms := store.NewMemoryStore()
	ms.AddProxy(&store.Proxy{ID: "p1", Endpoint: "http://p1", IsActive: true})
	mgr := proxy.NewManager(ms, time.Minute, resilience.DefaultRetryPolicy())
	pub := &recordingPublisher{}
	return worker.New("w1", f, mgr, pub, testRequeuePolicy()), pub, ms
}

func requestPayload(t *testing.T, req bus.CheckRequest) []byte {
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return b
}

func TestHandle_SuccessfulFetchPublishesListings(t *testing.T) {
	w, pub, _ := newTestWorker(t, &fakeFetcher{listings: []store.Listing{{ListingID: "L1", Price: 10}}})

	err := w.Handle(context.Background(), requestPayload(t, bus.CheckRequest{TaskID: "t1", AppID: 730, MarketHashName: "AK-47"}))
	require.NoError(t, err)
	require.Len(t, pub.results, 1)
	assert.True(t, pub.results[0].Success)
	assert.Len(t, pub.results[0].Listings, 1)
}

func TestHandle_RateLimitedRequeuesWithIncrementedAttempt(t *testing.T) {
	w, pub, _ := newTestWorker(t, &fakeFetcher{err: &resilience.RateLimitedError{RetryHint: "5"}})

	err := w.Handle(context.Background(), requestPayload(t, bus.CheckRequest{TaskID: "t1", Attempt: 0}))
	require.NoError(t, err, "a rate-limit classification is the worker's answer, not a delivery failure")
	require.Empty(t, pub.results, "below the retry cap, no CheckResult should be published yet")
	require.Len(t, pub.requests, 1)
	assert.Equal(t, 1, pub.requests[0].Attempt)
}

func TestHandle_RateLimitedPublishesFailureOnceCapExhausted(t *testing.T) {
	w, pub, _ := newTestWorker(t, &fakeFetcher{err: &resilience.RateLimitedError{RetryHint: "5"}})

	err := w.Handle(context.Background(), requestPayload(t, bus.CheckRequest{TaskID: "t1", Attempt: 3}))
	require.NoError(t, err)
	require.Empty(t, pub.requests, "at the cap, the request must not be requeued again")
	require.Len(t, pub.results, 1)
	assert.False(t, pub.results[0].Success)
	assert.Equal(t, "rate_limited", pub.results[0].ErrorKind)
}

func TestHandle_TransientFetchErrorRequeuesBelowCap(t *testing.T) {
	w, pub, _ := newTestWorker(t, &fakeFetcher{err: &resilience.TransientFetchError{Cause: context.DeadlineExceeded}})

	require.NoError(t, w.Handle(context.Background(), requestPayload(t, bus.CheckRequest{TaskID: "t1", Attempt: 1})))
	require.Empty(t, pub.results)
	require.Len(t, pub.requests, 1)
	assert.Equal(t, 2, pub.requests[0].Attempt)
}

func TestHandle_TransientFetchErrorPublishesFailureOnceCapExhausted(t *testing.T) {
	w, pub, _ := newTestWorker(t, &fakeFetcher{err: &resilience.TransientFetchError{Cause: context.DeadlineExceeded}})

	require.NoError(t, w.Handle(context.Background(), requestPayload(t, bus.CheckRequest{TaskID: "t1", Attempt: 3})))
	require.Len(t, pub.results, 1)
	assert.Equal(t, "transient_fetch_error", pub.results[0].ErrorKind)
}

func TestHandle_ParseErrorPublishesFailureButStillReportsProxySuccess(t *testing.T) {
	w, pub, ms := newTestWorker(t, &fakeFetcher{err: &resilience.ParseError{Cause: context.Canceled}})

	require.NoError(t, w.Handle(context.Background(), requestPayload(t, bus.CheckRequest{TaskID: "t1"})))
	require.Len(t, pub.results, 1)
	assert.Equal(t, "parse_error", pub.results[0].ErrorKind)
	assert.Empty(t, pub.requests, "a parse error is never retried")

	s, _ := ms.NewSession(context.Background())
	stats, err := ms.GetProxyStats(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Leasable, "a parse error is the upstream's payload, not evidence against the proxy")
}

func TestHandle_NoLeasableProxyNaksForRedelivery(t *testing.T) {
	ms := store.NewMemoryStore() // no proxies seeded
	mgr := proxy.NewManager(ms, time.Minute, resilience.DefaultRetryPolicy())
	pub := &recordingPublisher{}
	w := worker.New("w1", &fakeFetcher{}, mgr, pub, testRequeuePolicy())

	err := w.Handle(context.Background(), requestPayload(t, bus.CheckRequest{TaskID: "t1"}))
	require.Error(t, err)
	assert.Empty(t, pub.results, "pool exhaustion should nak for redelivery, not publish a failed result")
	assert.Empty(t, pub.requests)
}

func TestHTTPFetcher_ClassifiesByStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(time.Second, 0)
	_, err := f.Fetch(context.Background(), srv.URL, 730, "AK-47")
	var rl *resilience.RateLimitedError
	require.ErrorAs(t, err, &rl)
}
