package store

import (
	"context"
	"time"
)

// Store is the full persistence surface the system needs. It is
// implemented by PostgresStore; tests substitute an in-memory fake
// built against the same interface (grounded on the teacher's
// store.Store / MockStore split).
type Store interface {
	NewSession(ctx context.Context) (*Session, error)

	// Tasks
	CreateTask(ctx context.Context, s *Session, t *MonitoringTask) error
	GetTask(ctx context.Context, s *Session, taskID string) (*MonitoringTask, error)
	ListTasksByOwner(ctx context.Context, s *Session, ownerID string) ([]*MonitoringTask, error)
	ListActiveTasks(ctx context.Context, s *Session) ([]*MonitoringTask, error)
	SetTaskActive(ctx context.Context, s *Session, taskID string, active bool) error
	DeleteTask(ctx context.Context, s *Session, taskID string) error

	// Tick bookkeeping (I-T1/I-T2/P1/P2)
	AdvanceNextCheck(ctx context.Context, s *Session, taskID string, next time.Time) error
	IncrementTotalChecks(ctx context.Context, s *Session, taskID string) error
	RecordTaskError(ctx context.Context, s *Session, taskID string, errCount int, lastErr string) error
	ClearTaskError(ctx context.Context, s *Session, taskID string) error

	// Found items (L1 dedup)
	InsertFoundItemIfNew(ctx context.Context, s *Session, item *FoundItem) (inserted bool, err error)
	PruneFoundItemsOlderThan(ctx context.Context, s *Session, age time.Duration) (int64, error)

	// Proxies (P4/P6, durable lease+block state)
	AcquireProxy(ctx context.Context, s *Session, owner string, leaseTTL time.Duration) (*Proxy, error)
	ReleaseProxy(ctx context.Context, s *Session, proxyID, owner string) error
	ReportProxySuccess(ctx context.Context, s *Session, proxyID string) error
	ReportProxyRateLimit(ctx context.Context, s *Session, proxyID string, blockedUntil time.Time) error
	ReportProxyTransportFailure(ctx context.Context, s *Session, proxyID string) error
	GetProxyStats(ctx context.Context, s *Session) (*ProxyStats, error)
	UnblockExpiredProxies(ctx context.Context, s *Session) (int64, error)

	// Leader election fencing epoch
	IncrementEpoch(ctx context.Context, s *Session, resource string) (int64, error)

	Close()
}
