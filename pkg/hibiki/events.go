package hibiki

import (
	"encoding/json"
	"sync"
)

// EventType enumerates the notifications a Manager emits
type EventType string

const (
	EventNodeConnect    EventType = "nodeConnect"
	EventNodeDisconnect EventType = "nodeDisconnect"
	EventNodeReconnect  EventType = "nodeReconnect"
	EventNodeError      EventType = "nodeError"
	EventTrackStart     EventType = "trackStart"
	EventTrackEnd       EventType = "trackEnd"
	EventTrackError     EventType = "trackError"
	EventTrackStuck     EventType = "trackStuck"
	EventQueueEnd       EventType = "queueEnd"
	EventPlayerUpdate   EventType = "playerUpdate"
	EventPlayerCreate   EventType = "playerCreate"
	EventPlayerDestroy  EventType = "playerDestroy"
	EventSocketClosed   EventType = "socketClosed"
	EventDebug          EventType = "debug"
	EventRaw            EventType = "raw"
)

// Event carries a notification and its kind-specific payload. Fields
// other than Type are populated per kind: node events set Node, player
// and track events set Player (and Track where one is involved),
// socket closes set Code/Reason, raw events set Data.
type Event struct {
	Type   EventType
	Node   *Node
	Player *Player
	Track  *Track
	Error  error
	Code   int
	Reason string
	Data   json.RawMessage
	// Message carries free-form context for debug events.
	Message string
}

// EventHandler receives emitted events
type EventHandler func(e Event)

// Emitter is a synchronous publish-subscribe dispatcher. Handlers for
// an event type run in subscription order, on the emitting goroutine.
// Emission is re-entrant: a handler may subscribe, unsubscribe or emit
// further events without deadlocking.
type Emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventType][]subscription
}

type subscription struct {
	id      int
	handler EventHandler
}

// NewEmitter creates an empty emitter
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]subscription)}
}

// On subscribes a handler to an event type and returns an unsubscribe
// function.
func (e *Emitter) On(t EventType, h EventHandler) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers[t] = append(e.handlers[t], subscription{id: id, handler: h})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.handlers[t]
		for i, s := range subs {
			if s.id == id {
				e.handlers[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Emit dispatches an event to all handlers subscribed to its type.
// The handler list is snapshotted before dispatch so handlers can
// mutate subscriptions mid-emission.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	subs := e.handlers[ev.Type]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	e.mu.RUnlock()

	for _, s := range snapshot {
		s.handler(ev)
	}
}
