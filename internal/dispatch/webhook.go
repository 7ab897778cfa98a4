package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"event-router/internal/common/errors"
	"event-router/internal/storage"
)

// webhookBody is the JSON document POSTed to webhook destinations.
type webhookBody struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Payload   interface{}            `json:"payload"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, event *storage.DataEvent, rule *storage.RoutingRule) error {
	url, err := configString(rule.DestinationConfig, "url")
	if err != nil {
		return err
	}

	body, err := json.Marshal(webhookBody{
		EventID:   event.ID,
		EventType: event.EventType,
		Payload:   event.Payload,
		Metadata:  event.Metadata,
	})
	if err != nil {
		return errors.DispatchError("failed to encode webhook body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.DispatchError("failed to build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", event.ID)
	req.Header.Set("X-Event-Type", event.EventType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return errors.DispatchError("webhook request failed", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.DispatchError(
			fmt.Sprintf("webhook returned status %d", resp.StatusCode), nil)
	}

	return nil
}
