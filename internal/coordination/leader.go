// Package coordination provides scheduler high-availability: leader
// election over a Redis lease with a Postgres-durable fencing epoch,
// plus the observability-only sweepers that clean up after it.
// Grounded on the teacher's coordination/leader.go and coordination/janitor.go.
package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

const lockKey = "steamsentry:scheduler:leader"

type lockMetadata struct {
	OwnerNode string    `json:"owner_node"`
	Epoch     int64     `json:"epoch"`
	ReqID     string    `json:"req_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LeaderElector ensures at most one scheduler process runs the
// per-task control loops at a time, failing over automatically when
// the leader disappears. The fencing epoch distinguishes a genuinely
// new leadership term from a renewed one, so a delayed write from a
// since-demoted leader can be detected and rejected by callers that
// check it.
type LeaderElector struct {
	rdb     *redis.Client
	st      store.Store
	nodeID  string
	ttl     time.Duration

	mu           sync.Mutex
	isLeader     bool
	currentEpoch int64

	onElected func()
	onLost    func()

	cancel context.CancelFunc
}

func NewLeaderElector(rdb *redis.Client, st store.Store, nodeID string, ttl time.Duration) *LeaderElector {
	return &LeaderElector{rdb: rdb, st: st, nodeID: nodeID, ttl: ttl}
}

func (e *LeaderElector) SetCallbacks(onElected, onLost func()) {
	e.onElected = onElected
	e.onLost = onLost
}

// Start runs the election loop until ctx is cancelled.
func (e *LeaderElector) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.loop(ctx)
}

func (e *LeaderElector) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *LeaderElector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLeader
}

func (e *LeaderElector) CurrentEpoch() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentEpoch
}

func (e *LeaderElector) loop(ctx context.Context) {
	interval := e.ttl / 3
	minInterval := interval
	maxInterval := e.ttl * 10
	renewFailures := 0

	for {
		select {
		case <-ctx.Done():
			if e.IsLeader() {
				e.stepDown()
			}
			return
		case <-time.After(interval):
		}

		var err error
		if e.IsLeader() {
			err = e.renew(ctx)
		} else {
			err = e.acquire(ctx)
		}

		if err != nil {
			renewFailures++
			log.Warn().Err(err).Int("failures", renewFailures).Msg("coordination: leader election step failed")
			if e.IsLeader() && renewFailures >= 3 {
				e.stepDown()
			}
			interval *= 2
			if interval > maxInterval {
				interval = maxInterval
			}
			continue
		}
		renewFailures = 0
		interval = minInterval
	}
}

func (e *LeaderElector) acquire(ctx context.Context) error {
	s, err := e.st.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("coordination: open session: %w", err)
	}
	epoch, err := e.st.IncrementEpoch(ctx, s, "scheduler-leader")
	if err != nil {
		s.Rollback(ctx)
		return fmt.Errorf("coordination: increment epoch: %w", err)
	}
	if err := s.Commit(ctx); err != nil {
		return fmt.Errorf("coordination: commit epoch: %w", err)
	}

	meta := lockMetadata{
		OwnerNode: e.nodeID,
		Epoch:     epoch,
		ReqID:     uuid.NewString(),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(e.ttl),
	}
	data, _ := json.Marshal(meta)

	ok, err := e.rdb.SetNX(ctx, lockKey, data, e.ttl).Result()
	if err != nil {
		return fmt.Errorf("coordination: setnx: %w", err)
	}
	if !ok {
		return nil // someone else holds the lease; not an error, just not elected
	}

	e.mu.Lock()
	e.isLeader = true
	e.currentEpoch = epoch
	e.mu.Unlock()

	log.Info().Str("node", e.nodeID).Int64("epoch", epoch).Msg("coordination: scheduler leadership acquired")
	observability.LeadershipTransitions.WithLabelValues("elected").Inc()
	if e.onElected != nil {
		go e.onElected()
	}
	return nil
}

func (e *LeaderElector) renew(ctx context.Context) error {
	ok, err := e.rdb.Expire(ctx, lockKey, e.ttl).Result()
	if err != nil {
		return fmt.Errorf("coordination: renew expire: %w", err)
	}
	if !ok {
		return fmt.Errorf("coordination: lease key missing on renew")
	}
	return nil
}

func (e *LeaderElector) stepDown() {
	e.mu.Lock()
	e.isLeader = false
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = e.rdb.Del(ctx, lockKey).Err()

	log.Warn().Str("node", e.nodeID).Msg("coordination: scheduler leadership lost")
	observability.LeadershipTransitions.WithLabelValues("lost").Inc()
	if e.onLost != nil {
		go e.onLost()
	}
}
