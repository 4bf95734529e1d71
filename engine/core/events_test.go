package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	calls := []string{}

	bus.Register(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "first")
		return true
	})
	bus.Register(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "second")
		return true
	})

	handled := bus.Fire(EventContext{Type: EVENT_CODE_RESIZED, Width: 800, Height: 600})
	require.True(t, handled)
	assert.Equal(t, []string{"first"}, calls)
}

func TestEventBusUnregister(t *testing.T) {
	bus := NewEventBus()
	var got EventContext
	id := bus.Register(EVENT_CODE_KEY_PRESSED, func(ctx EventContext) bool {
		got = ctx
		return false
	})

	assert.False(t, bus.Fire(EventContext{Type: EVENT_CODE_KEY_PRESSED, KeyCode: KEY_E}))
	assert.Equal(t, KEY_E, got.KeyCode)

	require.True(t, bus.Unregister(EVENT_CODE_KEY_PRESSED, id))
	assert.False(t, bus.Unregister(EVENT_CODE_KEY_PRESSED, id))

	got = EventContext{}
	bus.Fire(EventContext{Type: EVENT_CODE_KEY_PRESSED, KeyCode: KEY_Q})
	assert.Equal(t, KeyCode(0), got.KeyCode)
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("warn"))
	require.Error(t, SetLogLevel("chatty"))
	require.NoError(t, SetLogLevel("debug"))
}
