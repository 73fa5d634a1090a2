package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Session is a dedicated handle affine to exactly one activity — a
// single scheduler tick, a single worker message, a single result
// commit. It is never shared across concurrent activities (P5). The
// teacher's control plane checks a tx out of a pool per call; this
// system needs explicit read-your-writes across a tick's several
// statements, so the handle is named and passed instead of re-derived.
//
// pgTx is nil for a Session produced by MemoryStore (internal/store's
// in-memory fake, used in tests): that implementation doesn't need a
// real transaction, only the same activity-affinity discipline.
type Session struct {
	pgTx   pgx.Tx
	closed bool
}

func newPgSession(tx pgx.Tx) *Session {
	return &Session{pgTx: tx}
}

func newMemSession() *Session {
	return &Session{}
}

// tx_ exposes the underlying transaction for statement execution
// inside PostgresStore. Not exported outside store on purpose: callers
// go through Store methods, never raw SQL.
func (s *Session) tx_() pgx.Tx { return s.pgTx }

// Commit commits the session's transaction (a no-op for MemoryStore,
// which applies its writes immediately under its own mutex). Safe to
// call once.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("session: already closed")
	}
	s.closed = true
	if s.pgTx == nil {
		return nil
	}
	return s.pgTx.Commit(ctx)
}

// Rollback aborts the session's transaction. Safe to call after Commit
// or Rollback has already run (no-op), so it can always be deferred.
func (s *Session) Rollback(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pgTx == nil {
		return nil
	}
	return s.pgTx.Rollback(ctx)
}
