package bus

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/observability"
)

// pendingPublish is one message that failed to reach the underlying
// bus and is waiting for a reconnect, mirroring the teacher's
// PendingWrite (resilience/degraded_mode.go) generalized from a Redis
// key/value pair to a bus subject/payload pair.
type pendingPublish struct {
	subject string
	payload []byte
	queuedAt time.Time
}

// BufferedPublisher wraps a Publisher with a bounded in-memory queue so
// a transient broker outage does not fail the caller: Publish always
// succeeds from the caller's point of view once it is buffered, and a
// background flusher drains the queue as soon as the underlying bus
// answers again. The queue holds at most defaultMaxPending messages;
// when it is full, the oldest buffered message is dropped to make room.
// Per policy, publish failures here are never escalated to block the
// caller.
type BufferedPublisher struct {
	underlying Publisher
	maxPending int

	mu        sync.Mutex
	pending   *list.List
	available bool
}

const defaultMaxPending = 10000

func NewBufferedPublisher(underlying Publisher) *BufferedPublisher {
	b := &BufferedPublisher{
		underlying: underlying,
		maxPending: defaultMaxPending,
		pending:    list.New(),
		available:  true,
	}
	return b
}

func (b *BufferedPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	b.mu.Lock()
	degraded := !b.available
	b.mu.Unlock()

	if !degraded {
		if err := b.underlying.Publish(ctx, subject, payload); err == nil {
			return nil
		}
		b.markUnavailable()
	}

	b.enqueue(subject, payload)
	return nil
}

func (b *BufferedPublisher) enqueue(subject string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending.Len() >= b.maxPending {
		oldest := b.pending.Front()
		b.pending.Remove(oldest)
		log.Warn().Str("subject", subject).Msg("bus: pending queue full, dropping oldest buffered message")
	}
	b.pending.PushBack(pendingPublish{subject: subject, payload: payload, queuedAt: time.Now()})
	observability.BusPendingMessages.Set(float64(b.pending.Len()))
}

func (b *BufferedPublisher) markUnavailable() {
	b.mu.Lock()
	b.available = false
	b.mu.Unlock()
}

// StartFlusher periodically retries buffered messages against the
// underlying bus, flipping back to available once a retry succeeds.
// Call once per process lifetime; it returns when ctx is cancelled.
func (b *BufferedPublisher) StartFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.flush(ctx)
		}
	}
}

func (b *BufferedPublisher) flush(ctx context.Context) {
	b.mu.Lock()
	if b.pending.Len() == 0 {
		b.mu.Unlock()
		return
	}
	batch := make([]pendingPublish, 0, b.pending.Len())
	for e := b.pending.Front(); e != nil; e = e.Next() {
		batch = append(batch, e.Value.(pendingPublish))
	}
	b.mu.Unlock()

	flushed := 0
	for _, p := range batch {
		if err := b.underlying.Publish(ctx, p.subject, p.payload); err != nil {
			log.Warn().Err(err).Msg("bus: flush still failing, bus remains degraded")
			return
		}
		flushed++
	}

	b.mu.Lock()
	for i := 0; i < flushed; i++ {
		b.pending.Remove(b.pending.Front())
	}
	b.available = true
	observability.BusPendingMessages.Set(float64(b.pending.Len()))
	b.mu.Unlock()

	if flushed > 0 {
		log.Info().Int("count", flushed).Msg("bus: flushed buffered messages after reconnect")
	}
}

func (b *BufferedPublisher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Len()
}

func (b *BufferedPublisher) Close() error {
	return b.underlying.Close()
}
