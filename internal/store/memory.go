package store

import (
	"sync"
	"time"

	"context"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests. It applies writes immediately under its own
// mutex rather than buffering until Commit (Session.Commit/Rollback
// are no-ops for a memory session) — adequate for a test double, not a
// substitute for PostgresStore's real transaction isolation. Grounded
// on the teacher's store/memory.go MemoryStore.
type MemoryStore struct {
	mu     sync.Mutex
	tasks  map[string]*MonitoringTask
	items  map[string]map[string]*FoundItem // taskID -> fingerprint -> item
	proxies map[string]*Proxy
	epochs map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[string]*MonitoringTask),
		items:   make(map[string]map[string]*FoundItem),
		proxies: make(map[string]*Proxy),
		epochs:  make(map[string]int64),
	}
}

func (m *MemoryStore) Close() {}

func (m *MemoryStore) NewSession(ctx context.Context) (*Session, error) {
	return newMemSession(), nil
}

func (m *MemoryStore) CreateTask(ctx context.Context, s *Session, t *MonitoringTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	t.IsActive = true
	cp := *t
	m.tasks[t.TaskID] = &cp
	return nil
}

func (m *MemoryStore) GetTask(ctx context.Context, s *Session, taskID string) (*MonitoringTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListTasksByOwner(ctx context.Context, s *Session, ownerID string) ([]*MonitoringTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*MonitoringTask
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListActiveTasks(ctx context.Context, s *Session) ([]*MonitoringTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*MonitoringTask
	for _, t := range m.tasks {
		if t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) SetTaskActive(ctx context.Context, s *Session, taskID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return errNotFound("task", taskID)
	}
	t.IsActive = active
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteTask(ctx context.Context, s *Session, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	delete(m.items, taskID)
	return nil
}

func (m *MemoryStore) AdvanceNextCheck(ctx context.Context, s *Session, taskID string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return errNotFound("task", taskID)
	}
	t.NextCheck = next
	now := time.Now()
	t.LastCheck = &now
	t.UpdatedAt = now
	return nil
}

func (m *MemoryStore) IncrementTotalChecks(ctx context.Context, s *Session, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return errNotFound("task", taskID)
	}
	t.TotalChecks++
	return nil
}

func (m *MemoryStore) RecordTaskError(ctx context.Context, s *Session, taskID string, errCount int, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return errNotFound("task", taskID)
	}
	t.ErrorCount = errCount
	t.LastError = lastErr
	return nil
}

func (m *MemoryStore) ClearTaskError(ctx context.Context, s *Session, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return errNotFound("task", taskID)
	}
	t.ErrorCount = 0
	t.LastError = ""
	return nil
}

func (m *MemoryStore) InsertFoundItemIfNew(ctx context.Context, s *Session, item *FoundItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byFP, ok := m.items[item.TaskID]
	if !ok {
		byFP = make(map[string]*FoundItem)
		m.items[item.TaskID] = byFP
	}
	if _, exists := byFP[item.Fingerprint]; exists {
		return false, nil
	}
	cp := *item
	cp.FoundAt = time.Now()
	byFP[item.Fingerprint] = &cp
	return true, nil
}

func (m *MemoryStore) PruneFoundItemsOlderThan(ctx context.Context, s *Session, age time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-age)
	var pruned int64
	for taskID, byFP := range m.items {
		for fp, item := range byFP {
			if item.FoundAt.Before(cutoff) {
				delete(byFP, fp)
				pruned++
			}
		}
		if len(byFP) == 0 {
			delete(m.items, taskID)
		}
	}
	return pruned, nil
}

func (m *MemoryStore) AcquireProxy(ctx context.Context, s *Session, owner string, leaseTTL time.Duration) (*Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, p := range m.proxies {
		if !p.IsActive {
			continue
		}
		if p.BlockedUntil != nil && p.BlockedUntil.After(now) {
			continue
		}
		if p.LeaseExpiresAt != nil && p.LeaseExpiresAt.After(now) {
			continue
		}
		p.LeaseOwner = owner
		expires := now.Add(leaseTTL)
		p.LeaseExpiresAt = &expires
		cp := *p
		return &cp, nil
	}
	return nil, ErrNoLeasableProxy()
}

func (m *MemoryStore) ReleaseProxy(ctx context.Context, s *Session, proxyID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[proxyID]
	if !ok || p.LeaseOwner != owner {
		return nil
	}
	p.LeaseOwner = ""
	p.LeaseExpiresAt = nil
	return nil
}

func (m *MemoryStore) ReportProxySuccess(ctx context.Context, s *Session, proxyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[proxyID]
	if !ok {
		return errNotFound("proxy", proxyID)
	}
	p.SuccessCount++
	return nil
}

func (m *MemoryStore) ReportProxyRateLimit(ctx context.Context, s *Session, proxyID string, blockedUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[proxyID]
	if !ok {
		return errNotFound("proxy", proxyID)
	}
	p.RateLimitCount++
	p.BlockedUntil = &blockedUntil
	p.LeaseOwner = ""
	p.LeaseExpiresAt = nil
	return nil
}

func (m *MemoryStore) ReportProxyTransportFailure(ctx context.Context, s *Session, proxyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[proxyID]
	if !ok {
		return errNotFound("proxy", proxyID)
	}
	p.FailureCount++
	p.LeaseOwner = ""
	p.LeaseExpiresAt = nil
	return nil
}

func (m *MemoryStore) GetProxyStats(ctx context.Context, s *Session) (*ProxyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &ProxyStats{}
	now := time.Now()
	for _, p := range m.proxies {
		st.Total++
		if p.IsActive {
			st.Active++
		}
		blocked := p.BlockedUntil != nil && p.BlockedUntil.After(now)
		leased := p.LeaseExpiresAt != nil && p.LeaseExpiresAt.After(now)
		if blocked {
			st.Blocked++
		}
		if leased {
			st.CurrentlyLeased++
		}
		if p.IsActive && !blocked && !leased {
			st.Leasable++
		}
	}
	return st, nil
}

func (m *MemoryStore) UnblockExpiredProxies(ctx context.Context, s *Session) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for _, p := range m.proxies {
		if p.BlockedUntil != nil && !p.BlockedUntil.After(now) {
			p.BlockedUntil = nil
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) IncrementEpoch(ctx context.Context, s *Session, resource string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs[resource]++
	return m.epochs[resource], nil
}

// AddProxy is a test/seed helper, not part of the Store interface.
func (m *MemoryStore) AddProxy(p *Proxy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.proxies[p.ID] = &cp
}

func errNotFound(kind, id string) error {
	return &notFoundError{kind: kind, id: id}
}

type notFoundError struct {
	kind, id string
}

func (e *notFoundError) Error() string {
	return e.kind + " " + e.id + " not found"
}
