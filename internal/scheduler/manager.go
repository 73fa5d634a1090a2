package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/store"
	"github.com/Tyrannozavr/steamParser/internal/timeline"
)

// Manager owns the registry of per-task control loops: at most one
// goroutine per active task id exists process-wide (I-T4), enforced by
// loops being keyed on task id under a single mutex. Manager only
// actually runs loops while this process holds scheduler leadership;
// callers gate Start/Stop on a coordination.LeaderElector's callbacks.
type Manager struct {
	store     store.Store
	publisher bus.Publisher
	cfg       Config

	mu    sync.Mutex
	loops map[string]*loopState
	ctx   context.Context

	timeline *timeline.Store
	onEvent  func(timeline.Event)
}

func NewManager(st store.Store, publisher bus.Publisher, cfg Config) *Manager {
	return &Manager{
		store:     st,
		publisher: publisher,
		cfg:       cfg,
		loops:     make(map[string]*loopState),
		timeline:  timeline.NewStore(200),
	}
}

// SetEventSink wires an optional live broadcast callback (the admin
// websocket hub) alongside the always-on in-memory timeline.Store.
func (m *Manager) SetEventSink(onEvent func(timeline.Event)) {
	m.onEvent = onEvent
}

// Timeline exposes the per-task event log for the admin API.
func (m *Manager) Timeline() *timeline.Store {
	return m.timeline
}

// recordEvent appends to the local timeline and, best-effort, publishes
// the event so an admin process in a split deployment can mirror it
// into its own timeline and live stream. Publish failures here are
// never surfaced to the control loop — a lost observability event must
// never affect forward progress (P2).
func (m *Manager) recordEvent(taskID, kind, detail string) {
	e := timeline.Event{TaskID: taskID, Kind: kind, Detail: detail, Timestamp: time.Now()}
	m.timeline.Record(context.Background(), e)
	if m.onEvent != nil {
		m.onEvent(e)
	}
	if m.publisher != nil {
		if payload, err := json.Marshal(e); err == nil {
			_ = m.publisher.Publish(context.Background(), bus.SubjectSchedulerEvents, payload)
		}
	}
}

// Start rehydrates every active task's control loop. Call from a
// leader-elected callback, never while standby.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	s, err := m.store.NewSession(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: start: open session failed")
		return
	}
	tasks, err := m.store.ListActiveTasks(ctx, s)
	s.Rollback(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: start: list active tasks failed")
		return
	}

	for _, t := range tasks {
		m.startLoop(ctx, t.TaskID)
	}
	log.Info().Int("tasks", len(tasks)).Msg("scheduler: started control loops")

	go m.reconcilePoll(ctx, m.cfg.ReconcileInterval)
}

// Stop asks every running loop to stop gracefully: a loop idle between
// ticks exits immediately, while a tick already in flight is allowed
// to finish its commit rather than being cut off mid-transaction. Only
// once StopGraceTimeout elapses without every loop reporting done does
// Stop fall back to a hard context cancel. Call from a
// leadership-lost callback.
func (m *Manager) Stop() {
	m.mu.Lock()
	loops := make([]*loopState, 0, len(m.loops))
	for id, ls := range m.loops {
		close(ls.stop)
		loops = append(loops, ls)
		delete(m.loops, id)
	}
	m.mu.Unlock()

	graceCtx, cancel := context.WithTimeout(context.Background(), m.cfg.StopGraceTimeout)
	defer cancel()

	settled := true
	for _, ls := range loops {
		select {
		case <-ls.done:
		case <-graceCtx.Done():
			settled = false
		}
	}

	if !settled {
		log.Warn().Dur("grace", m.cfg.StopGraceTimeout).Msg("scheduler: stop grace period exceeded, force-cancelling remaining loops")
		for _, ls := range loops {
			ls.cancel()
		}
		for _, ls := range loops {
			<-ls.done
		}
	}
	log.Info().Msg("scheduler: stopped all control loops")
}

func (m *Manager) startLoop(ctx context.Context, taskID string) {
	m.mu.Lock()
	if _, exists := m.loops[taskID]; exists {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	ls := &loopState{taskID: taskID, stop: make(chan struct{}), cancel: cancel, done: make(chan struct{})}
	m.loops[taskID] = ls
	m.mu.Unlock()

	go m.runTaskLoop(loopCtx, taskID, ls.stop, ls.done)
}

// OnTaskCreated starts a loop for a newly created, already-active task.
func (m *Manager) OnTaskCreated(taskID string) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		return
	}
	m.startLoop(ctx, taskID)
}

// OnTaskActivated (re)starts a loop for a task flipped back to active.
func (m *Manager) OnTaskActivated(taskID string) {
	m.OnTaskCreated(taskID)
}

// OnTaskDeactivated stops the loop for a task flipped to inactive.
func (m *Manager) OnTaskDeactivated(taskID string) {
	m.mu.Lock()
	ls, ok := m.loops[taskID]
	if ok {
		delete(m.loops, taskID)
	}
	m.mu.Unlock()
	if ok {
		ls.cancel()
	}
}

// OnTaskDeleted stops and forgets the loop for a deleted task.
func (m *Manager) OnTaskDeleted(taskID string) {
	m.OnTaskDeactivated(taskID)
}
