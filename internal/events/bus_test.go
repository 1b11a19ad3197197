package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/events"
)

type stubStore struct {
	lastTopic   string
	lastPayload []byte
}

func (s *stubStore) InsertDomainEvent(_ context.Context, tenantID, topic, aggregateID string, payload []byte) (events.Event, error) {
	s.lastTopic = topic
	s.lastPayload = payload
	return events.Event{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	event, err := bus.Emit(context.Background(), "t1", events.TopicBillCreated, uuid.NewString(),
		map[string]any{"invoiceNumber": "INV-20260830-00001"})
	require.NoError(t, err)
	require.Equal(t, events.TopicBillCreated, store.lastTopic)
	require.JSONEq(t, `{"invoiceNumber":"INV-20260830-00001"}`, string(store.lastPayload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "INV-20260830-00001", decoded["invoiceNumber"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}

	_, err := bus.Emit(context.Background(), "t1", "  ", "agg", nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), "t1", events.TopicBillPaid, "", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("gateway down")}
	ok := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{failing, ok}}

	event, err := bus.Emit(context.Background(), "t1", events.TopicBillPaid, uuid.NewString(), nil)
	require.Error(t, err)
	require.NotEmpty(t, event.ID)
	require.Len(t, ok.events, 1)
}
