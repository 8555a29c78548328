// Package events provides the local event targets a page exposes (its window
// and its document) and the event values dispatched on them.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/guest"
)

// Event types dispatched by the renderer.
const (
	TypeMessage          = "message"
	TypeVisibilityChange = "visibilitychange"
)

// Event is anything that can be dispatched on a Target.
type Event interface {
	Type() string
}

// BasicEvent carries nothing but its type.
type BasicEvent struct {
	typ string
}

// NewEvent creates a plain event of the given type.
func NewEvent(typ string) *BasicEvent { return &BasicEvent{typ: typ} }

// Type implements Event.
func (e *BasicEvent) Type() string { return e.typ }

// MessageEvent is a cross-document message. Source is the sending window as
// seen from this page; it is never carried on the wire, only reconstructed
// locally from the sender's id.
type MessageEvent struct {
	Data   any
	Origin string
	Source guest.Window
}

// NewMessageEvent builds a message event with all of its fields set.
func NewMessageEvent(data any, origin string, source guest.Window) *MessageEvent {
	return &MessageEvent{Data: data, Origin: origin, Source: source}
}

// Type implements Event.
func (e *MessageEvent) Type() string { return TypeMessage }

// Listener handles a dispatched event.
type Listener func(Event)

type registration struct {
	fn Listener
}

// Target keeps listeners per event type and dispatches events to them
// synchronously, in registration order.
type Target struct {
	name   string
	logger *zap.Logger

	mu        sync.Mutex
	listeners map[string][]*registration
}

// NewTarget creates an empty target. name only appears in logs.
func NewTarget(name string, logger *zap.Logger) *Target {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Target{
		name:      name,
		logger:    logger.Named(name),
		listeners: make(map[string][]*registration),
	}
}

// AddEventListener registers fn for events of type typ. The returned func
// removes exactly this registration.
func (t *Target) AddEventListener(typ string, fn Listener) (remove func()) {
	reg := &registration{fn: fn}
	t.mu.Lock()
	t.listeners[typ] = append(t.listeners[typ], reg)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			list := t.listeners[typ]
			for i, r := range list {
				if r == reg {
					t.listeners[typ] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// DispatchEvent delivers ev to the listeners registered for its type when
// dispatch starts, and returns how many were called. A panicking listener is
// logged and does not stop the others.
func (t *Target) DispatchEvent(ev Event) int {
	t.mu.Lock()
	regs := append([]*registration(nil), t.listeners[ev.Type()]...)
	t.mu.Unlock()

	for _, r := range regs {
		t.invoke(r.fn, ev)
	}
	return len(regs)
}

// ListenerCount reports how many listeners are registered for typ.
func (t *Target) ListenerCount(typ string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners[typ])
}

func (t *Target) invoke(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Event listener panicked",
				zap.String("type", ev.Type()),
				zap.Any("panic", r),
			)
		}
	}()
	fn(ev)
}
