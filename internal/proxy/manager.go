// Package proxy implements the Proxy Manager: Acquire, ReportSuccess,
// ReportRateLimit, ReportTransportFailure, GetStats, all backed by the
// durable Postgres lease/block state in internal/store (a deliberate
// redesign away from the teacher's volatile Redis-held locks, since
// proxy state here must survive a process restart).
package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/resilience"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

// Manager leases proxies out of the durable pool and records outcomes
// against them. Every method opens its own session, matching the
// one-session-per-activity discipline (P5).
type Manager struct {
	store    store.Store
	leaseTTL time.Duration
	backoff  resilience.RetryPolicy
}

func NewManager(s store.Store, leaseTTL time.Duration, backoff resilience.RetryPolicy) *Manager {
	return &Manager{store: s, leaseTTL: leaseTTL, backoff: backoff}
}

// Lease is a held proxy lease; callers end it by reporting an outcome
// through ReportSuccess, ReportRateLimit or ReportTransportFailure, each
// of which clears the lease as part of recording the outcome.
type Lease struct {
	Proxy    *store.Proxy
	owner    string
	manager  *Manager
	released bool
}

// Acquire leases the best available proxy for owner (typically a
// worker instance id or request correlation id). Returns
// ProxyUnavailableError if the pool has no leasable proxy right now;
// callers should requeue the check request with backoff rather than
// fail it outright.
func (m *Manager) Acquire(ctx context.Context, owner string) (*Lease, error) {
	s, err := m.store.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("proxy: open session: %w", err)
	}
	defer s.Rollback(ctx)

	p, err := m.store.AcquireProxy(ctx, s, owner, m.leaseTTL)
	if err != nil {
		if err == store.ErrNoLeasableProxy() {
			return nil, &resilience.ProxyUnavailableError{}
		}
		return nil, fmt.Errorf("proxy: acquire: %w", err)
	}
	if err := s.Commit(ctx); err != nil {
		return nil, fmt.Errorf("proxy: commit acquire: %w", err)
	}
	return &Lease{Proxy: p, owner: owner, manager: m}, nil
}

// ReportSuccess records a successful use and releases the lease.
func (l *Lease) ReportSuccess(ctx context.Context) error {
	if l.released {
		return nil
	}
	l.released = true
	s, err := l.manager.store.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("proxy: open session: %w", err)
	}
	defer s.Rollback(ctx)
	if err := l.manager.store.ReportProxySuccess(ctx, s, l.Proxy.ID); err != nil {
		return err
	}
	if err := l.manager.store.ReleaseProxy(ctx, s, l.Proxy.ID, l.owner); err != nil {
		return err
	}
	return s.Commit(ctx)
}

// ReportRateLimit records a rate-limit response and blocks the proxy
// for a cool-off window derived from the shared retry policy, keyed on
// how many times this proxy has been rate limited before (so a
// repeatedly-blocked proxy backs off further each time).
func (l *Lease) ReportRateLimit(ctx context.Context) error {
	if l.released {
		return nil
	}
	l.released = true
	s, err := l.manager.store.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("proxy: open session: %w", err)
	}
	defer s.Rollback(ctx)

	coolOff := l.manager.backoff.Delay(int(l.Proxy.RateLimitCount))
	blockedUntil := time.Now().Add(coolOff)
	if err := l.manager.store.ReportProxyRateLimit(ctx, s, l.Proxy.ID, blockedUntil); err != nil {
		return err
	}
	return s.Commit(ctx)
}

// ReportTransportFailure records a connection/timeout failure and
// releases the lease without blocking the proxy (transport failures
// are not evidence of a rate limit).
func (l *Lease) ReportTransportFailure(ctx context.Context) error {
	if l.released {
		return nil
	}
	l.released = true
	s, err := l.manager.store.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("proxy: open session: %w", err)
	}
	defer s.Rollback(ctx)
	if err := l.manager.store.ReportProxyTransportFailure(ctx, s, l.Proxy.ID); err != nil {
		return err
	}
	return s.Commit(ctx)
}

// GetStats reports pool health for the admin status snapshot.
func (m *Manager) GetStats(ctx context.Context) (*store.ProxyStats, error) {
	s, err := m.store.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("proxy: open session: %w", err)
	}
	defer s.Rollback(ctx)
	stats, err := m.store.GetProxyStats(ctx, s)
	if err != nil {
		return nil, err
	}
	observability.ProxyPoolGauge.WithLabelValues("total").Set(float64(stats.Total))
	observability.ProxyPoolGauge.WithLabelValues("active").Set(float64(stats.Active))
	observability.ProxyPoolGauge.WithLabelValues("leasable").Set(float64(stats.Leasable))
	observability.ProxyPoolGauge.WithLabelValues("blocked").Set(float64(stats.Blocked))
	observability.ProxyPoolGauge.WithLabelValues("leased").Set(float64(stats.CurrentlyLeased))
	return stats, nil
}
