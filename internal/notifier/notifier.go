// Package notifier delivers a found-item match to its owner.
// Notification is fire-and-forget: a failure is logged and metered,
// never escalated back to the caller, matching the teacher's
// publishEventAsync policy that observability must never block the
// critical path (control_plane/reconciler.go).
package notifier

import (
	"context"
	"time"

	"github.com/Tyrannozavr/steamParser/internal/store"
)

type Notifier interface {
	Notify(ctx context.Context, ownerID string, item store.FoundItem)
}

// notifyTimeout bounds how long a single notification attempt may run,
// so a slow webhook endpoint cannot pile up goroutines.
const notifyTimeout = 5 * time.Second
