package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
)

type recordingHandler struct {
	types []shared.EventType
	err   error

	mu     sync.Mutex
	events []shared.Event
}

func (h *recordingHandler) EventTypes() []shared.EventType {
	return h.types
}

func (h *recordingHandler) Handle(event shared.Event) error {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) received() []shared.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]shared.Event, len(h.events))
	copy(out, h.events)
	return out
}

func syncBus() *EventBus {
	return NewEventBus(EventBusConfig{AsyncMode: false})
}

func TestEventBus_DeliversToSubscribedTypes(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	handler := &recordingHandler{types: []shared.EventType{shared.EventChapterCompleted}}
	require.NoError(t, bus.Subscribe(handler))

	completed := shared.NewChapterCompletedEvent("learner1", "default", "ch1", 1, 100, 60, time.Now().UTC())
	updated := shared.NewProgressUpdatedEvent("learner1", "default", "ch1", 50, 20)

	require.NoError(t, bus.Publish(completed))
	require.NoError(t, bus.Publish(updated))

	events := handler.received()
	require.Len(t, events, 1)
	assert.Equal(t, shared.EventChapterCompleted, events[0].EventType())
}

func TestEventBus_MultipleHandlersPerType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	first := &recordingHandler{types: []shared.EventType{shared.EventProgressUpdated}}
	second := &recordingHandler{types: []shared.EventType{shared.EventProgressUpdated}}
	require.NoError(t, bus.Subscribe(first))
	require.NoError(t, bus.Subscribe(second))

	require.NoError(t, bus.Publish(shared.NewProgressUpdatedEvent("learner1", "default", "ch1", 10, 5)))

	assert.Len(t, first.received(), 1)
	assert.Len(t, second.received(), 1)
}

func TestEventBus_HandlerErrorDoesNotFailPublish(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	failing := &recordingHandler{
		types: []shared.EventType{shared.EventReconcileFailed},
		err:   errors.New("handler exploded"),
	}
	require.NoError(t, bus.Subscribe(failing))

	err := bus.Publish(shared.NewReconcileFailedEvent("learner1", "ch1", 40, "counter down"))
	assert.NoError(t, err)
	assert.Len(t, failing.received(), 1)

	snapshot := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snapshot.Failures)
}

func TestEventBus_AsyncDelivery(t *testing.T) {
	bus := NewEventBus(EventBusConfig{AsyncMode: true, WorkerPoolSize: 4})

	handler := &recordingHandler{types: []shared.EventType{shared.EventXPReconciled}}
	require.NoError(t, bus.Subscribe(handler))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewXPReconciledEvent("learner1", 10, "incremental")))
	}

	// Close waits for in-flight handlers
	require.NoError(t, bus.Close())
	assert.Len(t, handler.received(), 5)
}

func TestEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewXPReconciledEvent("learner1", 10, "incremental")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(&recordingHandler{types: []shared.EventType{shared.EventXPReconciled}}), ErrEventBusClosed)
}

func TestEventBus_NilSubscriptionAndEvent(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(nil), ErrNilHandler)
	assert.Error(t, bus.Publish(nil))
}

func TestEventBus_MetricsCountPublishes(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	handler := &recordingHandler{types: []shared.EventType{shared.EventProgressUpdated}}
	require.NoError(t, bus.Subscribe(handler))

	// Events without subscribers are not counted as published
	require.NoError(t, bus.Publish(shared.NewXPReconciledEvent("learner1", 10, "incremental")))
	require.NoError(t, bus.Publish(shared.NewProgressUpdatedEvent("learner1", "default", "ch1", 10, 5)))

	snapshot := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snapshot.Published)
	assert.Equal(t, int64(1), snapshot.Executions)
	assert.Equal(t, int64(0), snapshot.Failures)
}
