package messaging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/shared"
)

func newTestBus() *InMemoryEventBus {
	return NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
}

func streakEvent(streak int) shared.StreakUpdatedEvent {
	return shared.NewStreakUpdatedEvent("learner-1", streak, streak, time.Now())
}

func TestInMemoryEventBus_DeliversByType(t *testing.T) {
	bus := newTestBus()

	var got []shared.Event
	require.NoError(t, bus.Subscribe(shared.EventStreakUpdated, func(e shared.Event) error {
		got = append(got, e)
		return nil
	}))

	require.NoError(t, bus.Publish(streakEvent(3)))
	require.NoError(t, bus.Publish(shared.NewSettingsUpdatedEvent("learner-1", []string{"frequency"}, time.Now())))

	require.Len(t, got, 1)
	assert.Equal(t, shared.EventStreakUpdated, got[0].EventType())
}

func TestInMemoryEventBus_SubscribeAllSeesEverything(t *testing.T) {
	bus := newTestBus()

	var types []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		types = append(types, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(streakEvent(1)))
	require.NoError(t, bus.Publish(shared.NewStreakBrokenEvent("learner-1", 4, 2, time.Now())))

	assert.Equal(t, []shared.EventType{shared.EventStreakUpdated, shared.EventStreakBroken}, types)
}

func TestInMemoryEventBus_SynchronousOrder(t *testing.T) {
	bus := newTestBus()

	var order []int
	require.NoError(t, bus.Subscribe(shared.EventStreakUpdated, func(shared.Event) error {
		order = append(order, 1)
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventStreakUpdated, func(shared.Event) error {
		order = append(order, 2)
		return nil
	}))

	require.NoError(t, bus.Publish(streakEvent(2)))

	// Handlers ran on the publishing goroutine, in registration order.
	assert.Equal(t, []int{1, 2}, order)
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := newTestBus()

	called := false
	require.NoError(t, bus.Subscribe(shared.EventStreakUpdated, func(shared.Event) error {
		return errors.New("celebration widget offline")
	}))
	require.NoError(t, bus.Subscribe(shared.EventStreakUpdated, func(shared.Event) error {
		called = true
		return nil
	}))

	require.NoError(t, bus.Publish(streakEvent(5)))
	assert.True(t, called)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 1e-9)
}

func TestInMemoryEventBus_NilHandlerAndEvent(t *testing.T) {
	bus := newTestBus()

	assert.Error(t, bus.Subscribe(shared.EventStreakUpdated, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := newTestBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(streakEvent(1)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventStreakUpdated, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_MetricsCountsPublishes(t *testing.T) {
	bus := newTestBus()
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return nil }))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(streakEvent(i + 1)))
	}

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(3), snap.TotalPublished)
	assert.Equal(t, int64(3), snap.TotalHandlerExecs)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}
