package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/guestwin/internal/guest"
)

func TestTarget_DispatchOrderAndCount(t *testing.T) {
	target := NewTarget("window", zaptest.NewLogger(t))

	var order []int
	target.AddEventListener(TypeVisibilityChange, func(Event) { order = append(order, 1) })
	target.AddEventListener(TypeVisibilityChange, func(Event) { order = append(order, 2) })
	target.AddEventListener(TypeMessage, func(Event) { order = append(order, 99) })

	n := target.DispatchEvent(NewEvent(TypeVisibilityChange))
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, order)
}

func TestTarget_RemoveListener(t *testing.T) {
	target := NewTarget("document", nil)

	calls := 0
	remove := target.AddEventListener("x", func(Event) { calls++ })
	target.AddEventListener("x", func(Event) {})

	remove()
	remove() // second call is a no-op

	assert.Equal(t, 1, target.ListenerCount("x"))
	assert.Equal(t, 1, target.DispatchEvent(NewEvent("x")))
	assert.Zero(t, calls)
}

func TestTarget_PanickingListener(t *testing.T) {
	target := NewTarget("window", zaptest.NewLogger(t))

	reached := false
	target.AddEventListener("boom", func(Event) { panic("listener bug") })
	target.AddEventListener("boom", func(Event) { reached = true })

	assert.NotPanics(t, func() { target.DispatchEvent(NewEvent("boom")) })
	assert.True(t, reached)
}

func TestTarget_ListenerAddedDuringDispatchWaitsForNextEvent(t *testing.T) {
	target := NewTarget("window", nil)

	late := 0
	target.AddEventListener("e", func(Event) {
		target.AddEventListener("e", func(Event) { late++ })
	})

	assert.Equal(t, 1, target.DispatchEvent(NewEvent("e")))
	assert.Zero(t, late)
	assert.Equal(t, 2, target.DispatchEvent(NewEvent("e")))
	assert.Equal(t, 1, late)
}

func TestMessageEvent(t *testing.T) {
	var source guest.Window = &guest.Proxy{}
	ev := NewMessageEvent("hi", "https://a", source)

	require.Equal(t, TypeMessage, ev.Type())
	assert.Equal(t, "hi", ev.Data)
	assert.Equal(t, "https://a", ev.Origin)
	assert.Same(t, source, ev.Source)

	var delivered *MessageEvent
	target := NewTarget("window", nil)
	target.AddEventListener(TypeMessage, func(e Event) { delivered = e.(*MessageEvent) })
	target.DispatchEvent(ev)
	assert.Same(t, ev, delivered)
}
