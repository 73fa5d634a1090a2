package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrannozavr/steamParser/internal/store"
)

type fakePublisher struct {
	failNext bool
	published int
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if p.failNext {
		return errors.New("bus down")
	}
	p.published++
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func newTestTask(t *testing.T, ms *store.MemoryStore) *store.MonitoringTask {
	s, err := ms.NewSession(context.Background())
	require.NoError(t, err)
	task := &store.MonitoringTask{
		OwnerID:        "owner-1",
		AppID:          730,
		MarketHashName: "AK-47 | Redline",
		CheckInterval:  time.Minute,
		NextCheck:      time.Now(),
	}
	require.NoError(t, ms.CreateTask(context.Background(), s, task))
	require.NoError(t, s.Commit(context.Background()))
	return task
}

func TestTick_AdvancesNextCheckEvenWhenPublishFails(t *testing.T) {
	ms := store.NewMemoryStore()
	task := newTestTask(t, ms)
	pub := &fakePublisher{failNext: true}
	mgr := NewManager(ms, pub, DefaultConfig())

	before := task.NextCheck
	err := mgr.tick(context.Background(), task)
	assert.Error(t, err, "tick must surface the publish failure to the caller")

	s, _ := ms.NewSession(context.Background())
	reloaded, _ := ms.GetTask(context.Background(), s, task.TaskID)
	s.Rollback(context.Background())

	assert.True(t, reloaded.NextCheck.After(before), "next_check must advance regardless of publish outcome (P2)")
	require.NotNil(t, reloaded.LastCheck, "last_check must be stamped in the same update as next_check")
	assert.Equal(t, int64(0), reloaded.TotalChecks, "total_checks is incremented by the result processor, not the tick")
}

func TestTick_PublishesExactlyOnceOnSuccess(t *testing.T) {
	ms := store.NewMemoryStore()
	task := newTestTask(t, ms)
	pub := &fakePublisher{}
	mgr := NewManager(ms, pub, DefaultConfig())

	require.NoError(t, mgr.tick(context.Background(), task))
	assert.Equal(t, 1, pub.published)
}

func TestRecordError_AccumulatesAndSignalsGiveUpAtMaxErrors(t *testing.T) {
	ms := store.NewMemoryStore()
	task := newTestTask(t, ms)
	cfg := DefaultConfig()
	cfg.MaxErrors = 3
	mgr := NewManager(ms, &fakePublisher{}, cfg)

	cause := errors.New("boom")
	_, giveUp := mgr.recordError(context.Background(), task.TaskID, cause)
	assert.False(t, giveUp)
	_, giveUp = mgr.recordError(context.Background(), task.TaskID, cause)
	assert.False(t, giveUp)
	count, giveUp := mgr.recordError(context.Background(), task.TaskID, cause)
	assert.Equal(t, 3, count)
	assert.True(t, giveUp, "error count reaching MaxErrors must hand the task to recovery")
}

func TestClearError_ResetsCounterAfterSuccess(t *testing.T) {
	ms := store.NewMemoryStore()
	task := newTestTask(t, ms)
	mgr := NewManager(ms, &fakePublisher{}, DefaultConfig())

	mgr.recordError(context.Background(), task.TaskID, errors.New("boom"))
	mgr.clearError(context.Background(), task.TaskID)

	s, _ := ms.NewSession(context.Background())
	reloaded, _ := ms.GetTask(context.Background(), s, task.TaskID)
	s.Rollback(context.Background())
	assert.Equal(t, 0, reloaded.ErrorCount)
}

// blockingPublisher blocks Publish until release is closed, simulating
// an in-flight tick that Stop must wait to settle rather than cutting
// off mid-commit.
type blockingPublisher struct {
	release chan struct{}
}

func (p *blockingPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	<-p.release
	return nil
}

func (p *blockingPublisher) Close() error { return nil }

func TestManager_Stop_WaitsForInFlightTickToSettleBeforeReturning(t *testing.T) {
	ms := store.NewMemoryStore()
	task := newTestTask(t, ms) // NextCheck = now, so the loop ticks immediately
	pub := &blockingPublisher{release: make(chan struct{})}
	cfg := DefaultConfig()
	cfg.StopGraceTimeout = 2 * time.Second
	mgr := NewManager(ms, pub, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	// Give the loop goroutine a moment to enter tick() and block on publish.
	time.Sleep(20 * time.Millisecond)

	stopDone := make(chan struct{})
	go func() {
		mgr.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned before the in-flight tick settled")
	case <-time.After(50 * time.Millisecond):
	}

	close(pub.release)

	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the in-flight tick settled")
	}

	s, _ := ms.NewSession(context.Background())
	reloaded, _ := ms.GetTask(context.Background(), s, task.TaskID)
	s.Rollback(context.Background())
	assert.True(t, reloaded.NextCheck.After(task.NextCheck), "the in-flight tick must have committed before Stop returned")
}

func TestManager_StartStop_RunsExactlyOneLoopPerActiveTask(t *testing.T) {
	ms := store.NewMemoryStore()
	task1 := newTestTask(t, ms)
	task2 := newTestTask(t, ms)
	mgr := NewManager(ms, &fakePublisher{}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	mgr.mu.Lock()
	running := len(mgr.loops)
	mgr.mu.Unlock()
	assert.Equal(t, 2, running)
	assert.Contains(t, mgr.loops, task1.TaskID)
	assert.Contains(t, mgr.loops, task2.TaskID)

	mgr.Stop()
	cancel()

	mgr.mu.Lock()
	running = len(mgr.loops)
	mgr.mu.Unlock()
	assert.Equal(t, 0, running, "Stop must cancel every running loop")
}

func TestManager_OnTaskDeactivated_StopsThatLoopOnly(t *testing.T) {
	ms := store.NewMemoryStore()
	task1 := newTestTask(t, ms)
	task2 := newTestTask(t, ms)
	mgr := NewManager(ms, &fakePublisher{}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	mgr.OnTaskDeactivated(task1.TaskID)

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	assert.NotContains(t, mgr.loops, task1.TaskID)
	assert.Contains(t, mgr.loops, task2.TaskID)
}
