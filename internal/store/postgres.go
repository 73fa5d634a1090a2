package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig tunes the underlying pool. Defaults mirror the
// teacher's NewPostgresStore (store/postgres.go): a moderate pool with
// a health-check period so a wedged connection gets recycled.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	StatementTimeout time.Duration
}

func DefaultPostgresConfig(dsn string) PostgresConfig {
	return PostgresConfig{
		DSN:              dsn,
		MaxConns:         20,
		MinConns:         2,
		MaxConnLifetime:  time.Hour,
		StatementTimeout: 30 * time.Second,
	}
}

// PostgresStore is the canonical Store implementation.
type PostgresStore struct {
	pool    *pgxpool.Pool
	stmtTTL time.Duration
}

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &PostgresStore{pool: pool, stmtTTL: cfg.StatementTimeout}, nil
}

func (p *PostgresStore) Close() { p.pool.Close() }

// NewSession opens a dedicated transaction and sets a per-session
// statement timeout, so a single runaway query cannot pin the activity
// past its own deadline.
func (p *PostgresStore) NewSession(ctx context.Context) (*Session, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin session: %w", err)
	}
	ms := p.stmtTTL.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("store: set statement_timeout: %w", err)
	}
	return newPgSession(tx), nil
}

func (p *PostgresStore) CreateTask(ctx context.Context, s *Session, t *MonitoringTask) error {
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}
	filters, err := json.Marshal(t.Filters)
	if err != nil {
		return fmt.Errorf("store: marshal filters: %w", err)
	}
	_, err = s.tx_().Exec(ctx, `
		INSERT INTO monitoring_tasks
			(task_id, owner_id, app_id, market_hash_name, filters, check_interval,
			 next_check, is_active, error_count, total_checks, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,true,0,0,now(),now())
	`, t.TaskID, t.OwnerID, t.AppID, t.MarketHashName, filters, t.CheckInterval, t.NextCheck)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetTask(ctx context.Context, s *Session, taskID string) (*MonitoringTask, error) {
	row := s.tx_().QueryRow(ctx, `
		SELECT task_id, owner_id, app_id, market_hash_name, filters, check_interval,
		       next_check, last_check, is_active, error_count, total_checks, coalesce(last_error,''),
		       created_at, updated_at
		FROM monitoring_tasks WHERE task_id = $1
	`, taskID)
	return scanTask(row)
}

func (p *PostgresStore) ListTasksByOwner(ctx context.Context, s *Session, ownerID string) ([]*MonitoringTask, error) {
	rows, err := s.tx_().Query(ctx, `
		SELECT task_id, owner_id, app_id, market_hash_name, filters, check_interval,
		       next_check, last_check, is_active, error_count, total_checks, coalesce(last_error,''),
		       created_at, updated_at
		FROM monitoring_tasks WHERE owner_id = $1 ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks by owner: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (p *PostgresStore) ListActiveTasks(ctx context.Context, s *Session) ([]*MonitoringTask, error) {
	rows, err := s.tx_().Query(ctx, `
		SELECT task_id, owner_id, app_id, market_hash_name, filters, check_interval,
		       next_check, last_check, is_active, error_count, total_checks, coalesce(last_error,''),
		       created_at, updated_at
		FROM monitoring_tasks WHERE is_active ORDER BY next_check
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list active tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (p *PostgresStore) SetTaskActive(ctx context.Context, s *Session, taskID string, active bool) error {
	ct, err := s.tx_().Exec(ctx, `UPDATE monitoring_tasks SET is_active=$2, updated_at=now() WHERE task_id=$1`, taskID, active)
	if err != nil {
		return fmt.Errorf("store: set task active: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("store: task %s not found", taskID)
	}
	return nil
}

func (p *PostgresStore) DeleteTask(ctx context.Context, s *Session, taskID string) error {
	_, err := s.tx_().Exec(ctx, `DELETE FROM monitoring_tasks WHERE task_id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("store: delete task: %w", err)
	}
	return nil
}

// AdvanceNextCheck unconditionally moves next_check forward and stamps
// last_check=now() in the same UPDATE, decoupled from worker latency
// (the scheduler Tick algorithm's core invariant).
func (p *PostgresStore) AdvanceNextCheck(ctx context.Context, s *Session, taskID string, next time.Time) error {
	_, err := s.tx_().Exec(ctx, `UPDATE monitoring_tasks SET next_check=$2, last_check=now(), updated_at=now() WHERE task_id=$1`, taskID, next)
	if err != nil {
		return fmt.Errorf("store: advance next_check: %w", err)
	}
	return nil
}

func (p *PostgresStore) IncrementTotalChecks(ctx context.Context, s *Session, taskID string) error {
	_, err := s.tx_().Exec(ctx, `UPDATE monitoring_tasks SET total_checks=total_checks+1, updated_at=now() WHERE task_id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("store: increment total_checks: %w", err)
	}
	return nil
}

func (p *PostgresStore) RecordTaskError(ctx context.Context, s *Session, taskID string, errCount int, lastErr string) error {
	_, err := s.tx_().Exec(ctx, `UPDATE monitoring_tasks SET error_count=$2, last_error=$3, updated_at=now() WHERE task_id=$1`, taskID, errCount, lastErr)
	if err != nil {
		return fmt.Errorf("store: record task error: %w", err)
	}
	return nil
}

func (p *PostgresStore) ClearTaskError(ctx context.Context, s *Session, taskID string) error {
	_, err := s.tx_().Exec(ctx, `UPDATE monitoring_tasks SET error_count=0, last_error='', updated_at=now() WHERE task_id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("store: clear task error: %w", err)
	}
	return nil
}

// InsertFoundItemIfNew is L1: the unique constraint on (task_id,
// fingerprint) plus ON CONFLICT DO NOTHING is the sole de-dup
// mechanism. inserted is false exactly when the row already existed.
func (p *PostgresStore) InsertFoundItemIfNew(ctx context.Context, s *Session, item *FoundItem) (bool, error) {
	listing, err := json.Marshal(item.Listing)
	if err != nil {
		return false, fmt.Errorf("store: marshal listing: %w", err)
	}
	ct, err := s.tx_().Exec(ctx, `
		INSERT INTO found_items (task_id, fingerprint, listing, found_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (task_id, fingerprint) DO NOTHING
	`, item.TaskID, item.Fingerprint, listing)
	if err != nil {
		return false, fmt.Errorf("store: insert found item: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (p *PostgresStore) PruneFoundItemsOlderThan(ctx context.Context, s *Session, age time.Duration) (int64, error) {
	ct, err := s.tx_().Exec(ctx, `DELETE FROM found_items WHERE found_at < now() - $1::interval`, fmt.Sprintf("%d seconds", int64(age.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("store: prune found items: %w", err)
	}
	return ct.RowsAffected(), nil
}

// AcquireProxy is the optimistic-CAS lease, the same shape as the
// teacher's UpdateStateStatus version-compare UPDATE, generalized from
// a version column to a lease-deadline comparison: leasable means
// is_active and not currently blocked and not currently leased by
// someone else.
func (p *PostgresStore) AcquireProxy(ctx context.Context, s *Session, owner string, leaseTTL time.Duration) (*Proxy, error) {
	row := s.tx_().QueryRow(ctx, `
		WITH candidate AS (
			SELECT id FROM proxies
			WHERE is_active
			  AND (blocked_until IS NULL OR blocked_until <= now())
			  AND (lease_owner IS NULL OR lease_expires_at < now())
			ORDER BY last_used_at NULLS FIRST,
			         success_count::float8 / GREATEST(success_count + failure_count + rate_limit_count, 1) DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE proxies SET lease_owner=$1, lease_expires_at=now() + $2::interval, last_used_at=now()
		WHERE id = (SELECT id FROM candidate)
		RETURNING id, endpoint, is_active, lease_owner, lease_expires_at, blocked_until,
		          success_count, failure_count, rate_limit_count, last_used_at
	`, owner, fmt.Sprintf("%d seconds", int64(leaseTTL.Seconds())))

	proxy, err := scanProxy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNoLeasableProxy
		}
		return nil, fmt.Errorf("store: acquire proxy: %w", err)
	}
	return proxy, nil
}

var errNoLeasableProxy = errors.New("store: no leasable proxy")

func ErrNoLeasableProxy() error { return errNoLeasableProxy }

func (p *PostgresStore) ReleaseProxy(ctx context.Context, s *Session, proxyID, owner string) error {
	_, err := s.tx_().Exec(ctx, `
		UPDATE proxies SET lease_owner=NULL, lease_expires_at=NULL
		WHERE id=$1 AND lease_owner=$2
	`, proxyID, owner)
	if err != nil {
		return fmt.Errorf("store: release proxy: %w", err)
	}
	return nil
}

func (p *PostgresStore) ReportProxySuccess(ctx context.Context, s *Session, proxyID string) error {
	_, err := s.tx_().Exec(ctx, `UPDATE proxies SET success_count=success_count+1 WHERE id=$1`, proxyID)
	if err != nil {
		return fmt.Errorf("store: report proxy success: %w", err)
	}
	return nil
}

func (p *PostgresStore) ReportProxyRateLimit(ctx context.Context, s *Session, proxyID string, blockedUntil time.Time) error {
	_, err := s.tx_().Exec(ctx, `
		UPDATE proxies SET rate_limit_count=rate_limit_count+1, blocked_until=$2, lease_owner=NULL, lease_expires_at=NULL
		WHERE id=$1
	`, proxyID, blockedUntil)
	if err != nil {
		return fmt.Errorf("store: report proxy rate limit: %w", err)
	}
	return nil
}

func (p *PostgresStore) ReportProxyTransportFailure(ctx context.Context, s *Session, proxyID string) error {
	_, err := s.tx_().Exec(ctx, `
		UPDATE proxies SET failure_count=failure_count+1, lease_owner=NULL, lease_expires_at=NULL
		WHERE id=$1
	`, proxyID)
	if err != nil {
		return fmt.Errorf("store: report proxy transport failure: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetProxyStats(ctx context.Context, s *Session) (*ProxyStats, error) {
	row := s.tx_().QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE is_active),
			count(*) FILTER (WHERE is_active AND (blocked_until IS NULL OR blocked_until <= now()) AND (lease_owner IS NULL OR lease_expires_at < now())),
			count(*) FILTER (WHERE blocked_until IS NOT NULL AND blocked_until > now()),
			count(*) FILTER (WHERE lease_owner IS NOT NULL AND lease_expires_at >= now())
		FROM proxies
	`)
	st := &ProxyStats{}
	if err := row.Scan(&st.Total, &st.Active, &st.Leasable, &st.Blocked, &st.CurrentlyLeased); err != nil {
		return nil, fmt.Errorf("store: proxy stats: %w", err)
	}
	return st, nil
}

func (p *PostgresStore) UnblockExpiredProxies(ctx context.Context, s *Session) (int64, error) {
	ct, err := s.tx_().Exec(ctx, `UPDATE proxies SET blocked_until=NULL WHERE blocked_until IS NOT NULL AND blocked_until <= now()`)
	if err != nil {
		return 0, fmt.Errorf("store: unblock expired proxies: %w", err)
	}
	return ct.RowsAffected(), nil
}

// IncrementEpoch is the durable fencing-token counter the leader
// elector bumps on every acquisition attempt, mirroring the
// teacher's IncrementDurableEpoch upsert-and-increment pattern.
func (p *PostgresStore) IncrementEpoch(ctx context.Context, s *Session, resource string) (int64, error) {
	row := s.tx_().QueryRow(ctx, `
		INSERT INTO leader_epochs (resource_id, epoch) VALUES ($1, 1)
		ON CONFLICT (resource_id) DO UPDATE SET epoch = leader_epochs.epoch + 1
		RETURNING epoch
	`, resource)
	var epoch int64
	if err := row.Scan(&epoch); err != nil {
		return 0, fmt.Errorf("store: increment epoch: %w", err)
	}
	return epoch, nil
}

func scanTask(row pgx.Row) (*MonitoringTask, error) {
	var t MonitoringTask
	var filters []byte
	if err := row.Scan(&t.TaskID, &t.OwnerID, &t.AppID, &t.MarketHashName, &filters,
		&t.CheckInterval, &t.NextCheck, &t.LastCheck, &t.IsActive, &t.ErrorCount, &t.TotalChecks,
		&t.LastError, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &t.Filters); err != nil {
			return nil, fmt.Errorf("store: unmarshal filters: %w", err)
		}
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*MonitoringTask, error) {
	var out []*MonitoringTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanProxy(row pgx.Row) (*Proxy, error) {
	var p Proxy
	if err := row.Scan(&p.ID, &p.Endpoint, &p.IsActive, &p.LeaseOwner, &p.LeaseExpiresAt,
		&p.BlockedUntil, &p.SuccessCount, &p.FailureCount, &p.RateLimitCount, &p.LastUsedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
