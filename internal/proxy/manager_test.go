package proxy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrannozavr/steamParser/internal/proxy"
	"github.com/Tyrannozavr/steamParser/internal/resilience"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

func newTestManager(t *testing.T) (*proxy.Manager, *store.MemoryStore) {
	ms := store.NewMemoryStore()
	policy := resilience.RetryPolicy{BaseDelay: time.Millisecond, Factor: 2, Cap: time.Second, MaxAttempts: 10}
	return proxy.NewManager(ms, time.Minute, policy), ms
}

func TestAcquire_NoProxiesReturnsProxyUnavailable(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Acquire(context.Background(), "worker-1")
	var unavailable *resilience.ProxyUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestAcquire_LeasesAndExcludesAlreadyLeased(t *testing.T) {
	mgr, ms := newTestManager(t)
	ms.AddProxy(&store.Proxy{ID: "p1", Endpoint: "http://p1", IsActive: true})

	lease, err := mgr.Acquire(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", lease.Proxy.ID)

	_, err = mgr.Acquire(context.Background(), "worker-2")
	var unavailable *resilience.ProxyUnavailableError
	require.ErrorAs(t, err, &unavailable, "the only proxy is already leased")
}

func TestReportSuccess_ReleasesLeaseForReacquisition(t *testing.T) {
	mgr, ms := newTestManager(t)
	ms.AddProxy(&store.Proxy{ID: "p1", Endpoint: "http://p1", IsActive: true})

	lease, err := mgr.Acquire(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NoError(t, lease.ReportSuccess(context.Background()))

	lease2, err := mgr.Acquire(context.Background(), "worker-2")
	require.NoError(t, err)
	assert.Equal(t, "p1", lease2.Proxy.ID)
}

func TestReportRateLimit_BlocksProxyFromFutureAcquisition(t *testing.T) {
	mgr, ms := newTestManager(t)
	ms.AddProxy(&store.Proxy{ID: "p1", Endpoint: "http://p1", IsActive: true})

	lease, err := mgr.Acquire(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NoError(t, lease.ReportRateLimit(context.Background()))

	_, err = mgr.Acquire(context.Background(), "worker-2")
	var unavailable *resilience.ProxyUnavailableError
	require.ErrorAs(t, err, &unavailable, "rate-limited proxy must be excluded until its cool-off expires")
}

func TestReportTransportFailure_ReleasesWithoutBlocking(t *testing.T) {
	mgr, ms := newTestManager(t)
	ms.AddProxy(&store.Proxy{ID: "p1", Endpoint: "http://p1", IsActive: true})

	lease, err := mgr.Acquire(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NoError(t, lease.ReportTransportFailure(context.Background()))

	lease2, err := mgr.Acquire(context.Background(), "worker-2")
	require.NoError(t, err, "a transport failure is not evidence of a rate limit and must not block the proxy")
	assert.Equal(t, "p1", lease2.Proxy.ID)
}

func TestGetStats_ReflectsPoolComposition(t *testing.T) {
	mgr, ms := newTestManager(t)
	ms.AddProxy(&store.Proxy{ID: "p1", Endpoint: "http://p1", IsActive: true})
	ms.AddProxy(&store.Proxy{ID: "p2", Endpoint: "http://p2", IsActive: false})

	stats, err := mgr.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Leasable)
}
