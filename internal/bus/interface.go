// Package bus defines the durable, at-least-once message transport
// between the scheduler, worker, and result processor: two logical
// queues, check.requests and check.results.
package bus

import "context"

// Publisher sends a message to a subject. BufferedPublisher wraps any
// Publisher to hold messages in memory through a transient broker
// outage.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Close() error
}

// Handler processes one delivered message. Returning nil acks it;
// returning an error naks it for redelivery.
type Handler func(ctx context.Context, payload []byte) error

// Subscriber durably consumes a subject with at-least-once delivery.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, h Handler) error
	Close() error
}

const (
	SubjectCheckRequests   = "check.requests"
	SubjectCheckResults    = "check.results"
	SubjectSchedulerEvents = "scheduler.events"
)
