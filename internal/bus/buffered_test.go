package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	mu      sync.Mutex
	up      bool
	publishes []string
}

func (f *flakyPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.up {
		return errors.New("underlying bus down")
	}
	f.publishes = append(f.publishes, string(payload))
	return nil
}

func (f *flakyPublisher) Close() error { return nil }

func (f *flakyPublisher) setUp(up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up = up
}

func (f *flakyPublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.publishes)
}

func TestBufferedPublisher_PublishNeverFailsTheCallerDuringOutage(t *testing.T) {
	underlying := &flakyPublisher{up: false}
	b := NewBufferedPublisher(underlying)

	err := b.Publish(context.Background(), SubjectCheckRequests, []byte("msg-1"))
	assert.NoError(t, err, "a buffered publish must never surface the outage to the caller")
	assert.Equal(t, 1, b.PendingCount())
}

func TestBufferedPublisher_FlushDrainsOnceUnderlyingRecovers(t *testing.T) {
	underlying := &flakyPublisher{up: false}
	b := NewBufferedPublisher(underlying)

	require.NoError(t, b.Publish(context.Background(), SubjectCheckRequests, []byte("msg-1")))
	require.NoError(t, b.Publish(context.Background(), SubjectCheckRequests, []byte("msg-2")))
	assert.Equal(t, 2, b.PendingCount())

	underlying.setUp(true)
	b.flush(context.Background())

	assert.Equal(t, 0, b.PendingCount())
	assert.Equal(t, 2, underlying.count())
}

func TestBufferedPublisher_PublishPrefersUnderlyingWhenAvailable(t *testing.T) {
	underlying := &flakyPublisher{up: true}
	b := NewBufferedPublisher(underlying)

	require.NoError(t, b.Publish(context.Background(), SubjectCheckRequests, []byte("msg-1")))
	assert.Equal(t, 0, b.PendingCount())
	assert.Equal(t, 1, underlying.count())
}

func TestBufferedPublisher_StartFlusherRecoversAutomatically(t *testing.T) {
	underlying := &flakyPublisher{up: false}
	b := NewBufferedPublisher(underlying)
	require.NoError(t, b.Publish(context.Background(), SubjectCheckRequests, []byte("msg-1")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.StartFlusher(ctx, 5*time.Millisecond)

	underlying.setUp(true)
	require.Eventually(t, func() bool { return b.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
}
