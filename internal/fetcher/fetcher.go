// Package fetcher defines the opaque interface a Parsing Worker uses
// to retrieve listings for a task through a leased proxy. The concrete
// scraping/parsing logic is out of scope; this package only owns the
// HTTP call and the classification of its outcome into the typed
// resilience errors.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Tyrannozavr/steamParser/internal/resilience"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

// Fetcher retrieves the current listings for a market hash name,
// issuing the request through the given proxy endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, proxyEndpoint string, appID int, marketHashName string) ([]store.Listing, error)
}

// HTTPFetcher is the concrete Fetcher, grounded on the teacher's
// Dispatcher.DispatchJob: build a request, execute it through an
// http.Client with a bounded timeout, classify strictly on status code.
// A per-process token bucket paces outbound requests independently of
// proxy rotation, so each worker process stays under its configured
// rate regardless of how many distinct proxies it holds.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher builds a Fetcher capped at ratePerSecond requests per
// second process-wide (a ratePerSecond <= 0 disables pacing).
func NewHTTPFetcher(timeout time.Duration, ratePerSecond float64) *HTTPFetcher {
	f := &HTTPFetcher{client: &http.Client{Timeout: timeout}}
	if ratePerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, proxyEndpoint string, appID int, marketHashName string) ([]store.Listing, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &resilience.TransientFetchError{Cause: err}
		}
	}

	url := fmt.Sprintf("%s/market/listings?appid=%d&market_hash_name=%s", proxyEndpoint, appID, marketHashName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &resilience.TransientFetchError{Cause: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &resilience.TransientFetchError{Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			Listings []store.Listing `json:"listings"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, &resilience.ParseError{Cause: err}
		}
		return body.Listings, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &resilience.RateLimitedError{RetryHint: resp.Header.Get("Retry-After")}
	case resp.StatusCode >= 500:
		return nil, &resilience.TransientFetchError{Cause: fmt.Errorf("upstream returned %d", resp.StatusCode)}
	default:
		return nil, &resilience.ParseError{Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}
