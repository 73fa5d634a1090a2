package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/observability"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

// WebhookNotifier posts a match to the owner's configured bot endpoint.
// Grounded on the teacher's Dispatcher.DispatchJob HTTP-call shape.
type WebhookNotifier struct {
	resolveEndpoint func(ownerID string) (string, bool)
	client          *http.Client
}

func NewWebhookNotifier(resolveEndpoint func(string) (string, bool)) *WebhookNotifier {
	return &WebhookNotifier{
		resolveEndpoint: resolveEndpoint,
		client:          &http.Client{Timeout: notifyTimeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, ownerID string, item store.FoundItem) {
	endpoint, ok := n.resolveEndpoint(ownerID)
	if !ok {
		log.Debug().Str("owner_id", ownerID).Msg("notifier: no endpoint configured, skipping")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	data, err := json.Marshal(item)
	if err != nil {
		log.Warn().Err(err).Msg("notifier: marshal failed")
		observability.NotificationFailures.WithLabelValues("marshal").Inc()
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		log.Warn().Err(err).Msg("notifier: build request failed")
		observability.NotificationFailures.WithLabelValues("build_request").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID).Msg("notifier: delivery failed")
		observability.NotificationFailures.WithLabelValues("delivery").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("owner_id", ownerID).Msg("notifier: endpoint rejected match")
		observability.NotificationFailures.WithLabelValues("rejected").Inc()
	}
}

// LogNotifier is the local/dev fallback, grounded on the teacher's
// streaming.LogPublisher stub.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ownerID string, item store.FoundItem) {
	log.Info().Str("owner_id", ownerID).Str("task_id", item.TaskID).Str("listing", item.Listing.Name).
		Msg(fmt.Sprintf("[NOTIFY] match for %s", ownerID))
}
