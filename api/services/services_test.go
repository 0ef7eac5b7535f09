package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/pulsechat/pulse/api/bus"
	"github.com/pulsechat/pulse/api/protocol"
	"github.com/pulsechat/pulse/api/store"
)

// eventRecorder captures everything a Publisher broadcasts during a test.
// MemoryBus dispatches synchronously, so no waiting is needed.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Topic string
	Type  protocol.EventType
	Body  json.RawMessage
}

func (r *eventRecorder) record(topic string, payload []byte) {
	var raw struct {
		Type protocol.EventType `json:"type"`
		Body json.RawMessage    `json:"body"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		panic("recorder: bad frame: " + err.Error())
	}
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{Topic: topic, Type: raw.Type, Body: raw.Body})
	r.mu.Unlock()
}

func (r *eventRecorder) types() []protocol.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]protocol.EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

func (r *eventRecorder) decode(t *testing.T, i int, dst any) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.events) {
		t.Fatalf("expected at least %d events, have %d", i+1, len(r.events))
	}
	if err := json.Unmarshal(r.events[i].Body, dst); err != nil {
		t.Fatalf("decode event %d: %v", i, err)
	}
}

// newTestPublisher wires a Publisher over a MemoryBus subscribed to the
// given conversations.
func newTestPublisher(t *testing.T, conversationIDs ...string) (*Publisher, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{}
	b := bus.NewMemory()
	b.Start(rec.record)
	for _, convID := range conversationIDs {
		if err := b.Subscribe(context.Background(), bus.ConversationTopic(convID)); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(func() { b.Close() })
	return NewPublisher(b), rec
}

// newMockStore returns a store whose queries run against pgxmock
// expectations, plus the context that routes them there.
func newMockStore(t *testing.T) (*store.Store, pgxmock.PgxPoolIface, context.Context) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	return store.New(nil), mock, store.ContextWithTx(context.Background(), mock)
}

func checkExpectations(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func strptr(s string) *string { return &s }
