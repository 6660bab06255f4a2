package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus()

	var got []Event
	bus.Subscribe(BookingResolved, func(e Event) error {
		got = append(got, e)
		return nil
	})
	bus.Subscribe(SlotsRefreshed, func(e Event) error {
		t.Fatalf("unexpected event %s", e.Type)
		return nil
	})

	require.NoError(t, bus.Publish(BookingResolved, map[string]string{"startTime": "09:30:00"}))
	require.NoError(t, bus.Publish(BookingResolved, map[string]string{"startTime": "10:00:00"}))

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	var payload map[string]string
	require.NoError(t, got[1].Decode(&payload))
	assert.Equal(t, "10:00:00", payload["startTime"])
}

func TestPublishJoinsHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	boom := errors.New("boom")

	calls := 0
	bus.Subscribe(BookingSubmitted, func(Event) error { calls++; return boom })
	bus.Subscribe(BookingSubmitted, func(Event) error { calls++; return nil })

	err := bus.Publish(BookingSubmitted, struct{}{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	assert.NoError(t, NewEventBus().Publish(SlotsRefreshed, nil))
}

func TestPublishRejectsUnencodablePayload(t *testing.T) {
	err := NewEventBus().Publish(SlotsRefreshed, make(chan int))
	assert.Error(t, err)
}
