package resultprocessor_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrannozavr/steamParser/internal/bus"
	"github.com/Tyrannozavr/steamParser/internal/fingerprint"
	"github.com/Tyrannozavr/steamParser/internal/resultprocessor"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *recordingNotifier) Notify(ctx context.Context, ownerID string, item store.FoundItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func setup(t *testing.T) (*resultprocessor.Processor, *store.MemoryStore, *recordingNotifier, *store.MonitoringTask) {
	ms := store.NewMemoryStore()
	s, err := ms.NewSession(context.Background())
	require.NoError(t, err)
	maxPrice := 100.0
	task := &store.MonitoringTask{
		OwnerID:        "owner-1",
		AppID:          730,
		MarketHashName: "AK-47 | Redline",
		Filters:        store.FilterDoc{MaxPrice: &maxPrice},
		CheckInterval:  time.Minute,
		NextCheck:      time.Now(),
	}
	require.NoError(t, ms.CreateTask(context.Background(), s, task))
	require.NoError(t, s.Commit(context.Background()))

	n := &recordingNotifier{}
	return resultprocessor.New(ms, n, 5*time.Second), ms, n, task
}

func handleResult(t *testing.T, p *resultprocessor.Processor, result bus.CheckResult) {
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, p.Handle(context.Background(), payload))
}

func TestHandle_NewMatchNotifiesOnce(t *testing.T) {
	p, _, notifier, task := setup(t)

	result := bus.CheckResult{
		TaskID:  task.TaskID,
		Success: true,
		Listings: []store.Listing{
			{ListingID: "L1", Price: 50, Name: "AK-47 | Redline"},
		},
	}
	handleResult(t, p, result)

	// Notification is fire-and-forget; give the goroutine a moment.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, notifier.count())
}

func TestHandle_DuplicateListingDoesNotRenotify(t *testing.T) {
	p, _, notifier, task := setup(t)

	result := bus.CheckResult{
		TaskID:  task.TaskID,
		Success: true,
		Listings: []store.Listing{
			{ListingID: "L1", Price: 50, Name: "AK-47 | Redline"},
		},
	}
	handleResult(t, p, result)
	handleResult(t, p, result)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, notifier.count(), "L1 result replayed twice must only notify once (L1 dedup)")
}

func TestHandle_FilteredOutListingIsNeverStored(t *testing.T) {
	p, ms, notifier, task := setup(t)

	result := bus.CheckResult{
		TaskID:  task.TaskID,
		Success: true,
		Listings: []store.Listing{
			{ListingID: "L2", Price: 500, Name: "AK-47 | Redline"}, // over max_price
		},
	}
	handleResult(t, p, result)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, notifier.count())

	s, err := ms.NewSession(context.Background())
	require.NoError(t, err)
	fp := fingerprint.Compute(task.TaskID, result.Listings[0])
	inserted, err := ms.InsertFoundItemIfNew(context.Background(), s, &store.FoundItem{TaskID: task.TaskID, Fingerprint: fp})
	require.NoError(t, err)
	assert.True(t, inserted, "filtered-out listing must never have been inserted under its fingerprint")
}

func TestHandle_FailedCheckIsIgnored(t *testing.T) {
	p, _, notifier, task := setup(t)

	handleResult(t, p, bus.CheckResult{TaskID: task.TaskID, Success: false, ErrorKind: "rate_limited"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, notifier.count())
}

func TestHandle_IncrementsTotalChecksOnSuccessfulResult(t *testing.T) {
	p, ms, _, task := setup(t)

	handleResult(t, p, bus.CheckResult{
		TaskID:  task.TaskID,
		Success: true,
		Listings: []store.Listing{
			{ListingID: "L1", Price: 50, Name: "AK-47 | Redline"},
		},
	})

	s, err := ms.NewSession(context.Background())
	require.NoError(t, err)
	got, err := ms.GetTask(context.Background(), s, task.TaskID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TotalChecks)
}

func TestHandle_IncrementsTotalChecksEvenOnFailedResult(t *testing.T) {
	p, ms, _, task := setup(t)

	handleResult(t, p, bus.CheckResult{TaskID: task.TaskID, Success: false, ErrorKind: "rate_limited"})

	s, err := ms.NewSession(context.Background())
	require.NoError(t, err)
	got, err := ms.GetTask(context.Background(), s, task.TaskID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TotalChecks, "total_checks counts a processed result regardless of success")
}

func TestHandle_InactiveTaskIsIgnored(t *testing.T) {
	p, ms, notifier, task := setup(t)

	s, err := ms.NewSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, ms.SetTaskActive(context.Background(), s, task.TaskID, false))
	require.NoError(t, s.Commit(context.Background()))

	handleResult(t, p, bus.CheckResult{
		TaskID:   task.TaskID,
		Success:  true,
		Listings: []store.Listing{{ListingID: "L1", Price: 1, Name: "AK-47 | Redline"}},
	})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, notifier.count())
}
