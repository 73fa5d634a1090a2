// Package scheduler runs one control loop per active MonitoringTask:
// tick, publish a CheckRequest, unconditionally advance next_check,
// sleep, repeat — with bounded-attempt exponential-backoff recovery
// when a task accumulates errors past E_max.
package scheduler

import "time"

// Config tunes the scheduler as a whole, not any single task loop.
type Config struct {
	MaxErrors     int           // E_max from spec.md §4.2
	TickPublishTimeout time.Duration
	StaleLoopCheckInterval time.Duration
	ReconcileInterval time.Duration
	StopGraceTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxErrors:              5,
		TickPublishTimeout:     10 * time.Second,
		StaleLoopCheckInterval: 30 * time.Second,
		ReconcileInterval:      15 * time.Second,
		StopGraceTimeout:       5 * time.Second,
	}
}

// loopState is the in-memory bookkeeping for one task's control loop;
// the durable source of truth is always the row in monitoring_tasks.
// stop is a graceful-shutdown signal checked between ticks (an idle
// loop sleeping until next_check exits immediately); cancel is the
// hard kill used only once Stop's grace deadline has passed, which can
// interrupt a tick already in flight.
type loopState struct {
	taskID string
	stop   chan struct{}
	cancel func()
	done   chan struct{}
}
