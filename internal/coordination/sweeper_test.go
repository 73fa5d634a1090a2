package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrannozavr/steamParser/internal/store"
)

func TestProxySweeper_UnblocksExpiredProxiesAndReportsStats(t *testing.T) {
	ms := store.NewMemoryStore()
	past := time.Now().Add(-time.Minute)
	ms.AddProxy(&store.Proxy{ID: "p1", IsActive: true, BlockedUntil: &past})
	ms.AddProxy(&store.Proxy{ID: "p2", IsActive: true})

	var gotUnblocked int64
	var gotStats *store.ProxyStats
	sweeper := NewProxySweeper(ms, time.Hour, func(unblocked int64, stats *store.ProxyStats) {
		gotUnblocked = unblocked
		gotStats = stats
	})

	sweeper.sweep(context.Background())

	assert.Equal(t, int64(1), gotUnblocked)
	require.NotNil(t, gotStats)
	assert.Equal(t, 2, gotStats.Total)
	assert.Equal(t, 2, gotStats.Leasable, "both proxies must be leasable once the cool-off has passed")
}

func TestStaleLoopMonitor_FlagsTasksPastTwiceTheirInterval(t *testing.T) {
	ms := store.NewMemoryStore()
	s, err := ms.NewSession(context.Background())
	require.NoError(t, err)

	staleTask := &store.MonitoringTask{
		OwnerID:        "owner-1",
		MarketHashName: "Stale Item",
		CheckInterval:  time.Minute,
		NextCheck:      time.Now().Add(-5 * time.Minute),
	}
	freshTask := &store.MonitoringTask{
		OwnerID:        "owner-1",
		MarketHashName: "Fresh Item",
		CheckInterval:  time.Minute,
		NextCheck:      time.Now().Add(30 * time.Second),
	}
	require.NoError(t, ms.CreateTask(context.Background(), s, staleTask))
	require.NoError(t, ms.CreateTask(context.Background(), s, freshTask))
	require.NoError(t, s.Commit(context.Background()))

	var flagged []string
	monitor := NewStaleLoopMonitor(ms, time.Hour, func(taskID string, overdue time.Duration) {
		flagged = append(flagged, taskID)
	})

	monitor.check(context.Background())

	assert.Contains(t, flagged, staleTask.TaskID)
	assert.NotContains(t, flagged, freshTask.TaskID)
}
