package hibiki

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterDeliversInSubscriptionOrder(t *testing.T) {
	e := NewEmitter()

	var order []string
	e.On(EventDebug, func(Event) { order = append(order, "first") })
	e.On(EventDebug, func(Event) { order = append(order, "second") })
	e.On(EventDebug, func(Event) { order = append(order, "third") })

	e.Emit(Event{Type: EventDebug})
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEmitterMultipleKinds(t *testing.T) {
	e := NewEmitter()

	var connects, disconnects int
	e.On(EventNodeConnect, func(Event) { connects++ })
	e.On(EventNodeDisconnect, func(Event) { disconnects++ })

	e.Emit(Event{Type: EventNodeConnect})
	e.Emit(Event{Type: EventNodeConnect})
	e.Emit(Event{Type: EventNodeDisconnect})

	assert.Equal(t, 2, connects)
	assert.Equal(t, 1, disconnects)
}

func TestEmitterUnsubscribe(t *testing.T) {
	e := NewEmitter()

	var calls int
	off := e.On(EventDebug, func(Event) { calls++ })

	e.Emit(Event{Type: EventDebug})
	off()
	e.Emit(Event{Type: EventDebug})

	assert.Equal(t, 1, calls)

	// Unsubscribing twice is harmless.
	off()
	e.Emit(Event{Type: EventDebug})
	assert.Equal(t, 1, calls)
}

func TestEmitterReentrantEmission(t *testing.T) {
	e := NewEmitter()

	var raws int
	e.On(EventRaw, func(Event) { raws++ })

	// A handler emitting further events must not deadlock.
	e.On(EventTrackStart, func(Event) {
		e.Emit(Event{Type: EventRaw})
	})
	// A handler subscribing mid-emission must not corrupt dispatch.
	e.On(EventTrackStart, func(Event) {
		e.On(EventRaw, func(Event) { raws += 100 })
	})

	e.Emit(Event{Type: EventTrackStart})
	assert.Equal(t, 1, raws)

	e.Emit(Event{Type: EventRaw})
	assert.Equal(t, 102, raws)
}
