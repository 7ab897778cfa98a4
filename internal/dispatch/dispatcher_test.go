package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-router/internal/storage"
	"event-router/internal/testutil"
)

type fakeQueue struct {
	published map[string][][]byte
	err       error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{published: make(map[string][][]byte)}
}

func (q *fakeQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	if q.err != nil {
		return q.err
	}
	q.published[queueName] = append(q.published[queueName], body)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func newDispatcher(store storage.Storage, queue QueuePublisher) *Dispatcher {
	return NewDispatcher(store, queue, testutil.NopLogger{}, 5*time.Second)
}

func TestDispatchWebhook(t *testing.T) {
	var received webhookBody
	var gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher := newDispatcher(testutil.NewMemStore(), nil)
	event := testutil.NewEvent("acme", "order.created", map[string]interface{}{"total": 150.0})
	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationConfig = map[string]interface{}{"url": server.URL}

	outcome := dispatcher.Dispatch(context.Background(), event, rule)

	assert.True(t, outcome.Success)
	assert.Empty(t, outcome.Error)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, event.ID, received.EventID)
	assert.Equal(t, "order.created", received.EventType)
	assert.Equal(t, map[string]interface{}{"total": 150.0}, received.Payload)
}

func TestDispatchWebhookNon2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	dispatcher := newDispatcher(testutil.NewMemStore(), nil)
	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationConfig = map[string]interface{}{"url": server.URL}

	outcome := dispatcher.Dispatch(context.Background(), testutil.NewEvent("acme", "x", nil), rule)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "502")
}

func TestDispatchWebhookUnreachable(t *testing.T) {
	dispatcher := newDispatcher(testutil.NewMemStore(), nil)
	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationConfig = map[string]interface{}{"url": "http://127.0.0.1:1/hook"}

	outcome := dispatcher.Dispatch(context.Background(), testutil.NewEvent("acme", "x", nil), rule)

	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.Error)
}

func TestDispatchWebhookMissingURL(t *testing.T) {
	dispatcher := newDispatcher(testutil.NewMemStore(), nil)
	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationConfig = map[string]interface{}{}

	outcome := dispatcher.Dispatch(context.Background(), testutil.NewEvent("acme", "x", nil), rule)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "url")
}

func TestDispatchTable(t *testing.T) {
	store := testutil.NewMemStore()
	dispatcher := newDispatcher(store, nil)

	event := testutil.NewEvent("acme", "order.created", map[string]interface{}{"total": 1.0})
	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationType = storage.DestinationTable
	rule.DestinationConfig = map[string]interface{}{"table_name": "orders_archive"}

	outcome := dispatcher.Dispatch(context.Background(), event, rule)

	assert.True(t, outcome.Success)
	require.Len(t, store.DestinationRows["orders_archive"], 1)
	assert.Equal(t, event.ID, store.DestinationRows["orders_archive"][0].ID)
}

func TestDispatchQueue(t *testing.T) {
	queue := newFakeQueue()
	dispatcher := newDispatcher(testutil.NewMemStore(), queue)

	event := testutil.NewEvent("acme", "order.created", map[string]interface{}{"total": 1.0})
	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationType = storage.DestinationQueue
	rule.DestinationConfig = map[string]interface{}{"queue_name": "orders"}

	outcome := dispatcher.Dispatch(context.Background(), event, rule)

	assert.True(t, outcome.Success)
	require.Len(t, queue.published["orders"], 1)

	var body webhookBody
	require.NoError(t, json.Unmarshal(queue.published["orders"][0], &body))
	assert.Equal(t, event.ID, body.EventID)
}

func TestDispatchQueuePublishFailure(t *testing.T) {
	queue := newFakeQueue()
	queue.err = errors.New("broker gone")
	dispatcher := newDispatcher(testutil.NewMemStore(), queue)

	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationType = storage.DestinationQueue
	rule.DestinationConfig = map[string]interface{}{"queue_name": "orders"}

	outcome := dispatcher.Dispatch(context.Background(), testutil.NewEvent("acme", "x", nil), rule)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "broker gone")
}

func TestDispatchQueueDisabled(t *testing.T) {
	dispatcher := newDispatcher(testutil.NewMemStore(), nil)

	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationType = storage.DestinationQueue
	rule.DestinationConfig = map[string]interface{}{"queue_name": "orders"}

	outcome := dispatcher.Dispatch(context.Background(), testutil.NewEvent("acme", "x", nil), rule)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "not configured")
}

func TestDispatchUnknownDestination(t *testing.T) {
	dispatcher := newDispatcher(testutil.NewMemStore(), nil)

	rule := testutil.NewRule("acme", 10, nil)
	rule.DestinationType = "email"

	outcome := dispatcher.Dispatch(context.Background(), testutil.NewEvent("acme", "x", nil), rule)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "unknown destination type")
}
