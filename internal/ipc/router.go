// internal/ipc/router.go
package ipc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type subscription struct {
	fn   Listener
	once bool
}

// router holds the listener and handler tables shared by every endpoint
// implementation.
type router struct {
	logger *zap.Logger

	mu        sync.Mutex
	listeners map[string][]*subscription
	handlers  map[string]SyncHandler
}

func newRouter(logger *zap.Logger) *router {
	return &router{
		logger:    logger,
		listeners: make(map[string][]*subscription),
		handlers:  make(map[string]SyncHandler),
	}
}

func (r *router) subscribe(channel string, fn Listener, once bool) func() {
	sub := &subscription{fn: fn, once: once}

	r.mu.Lock()
	r.listeners[channel] = append(r.listeners[channel], sub)
	r.mu.Unlock()

	return func() { r.remove(channel, sub) }
}

func (r *router) remove(channel string, sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.listeners[channel]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(r.listeners, channel)
		return
	}
	r.listeners[channel] = subs
}

// emit delivers msg to the current listeners. One-shot subscriptions are
// retired under the lock before any listener runs, so they fire at most once.
func (r *router) emit(msg Message) int {
	r.mu.Lock()
	subs := r.listeners[msg.Channel]
	if len(subs) == 0 {
		r.mu.Unlock()
		return 0
	}
	targets := make([]*subscription, len(subs))
	copy(targets, subs)

	kept := subs[:0:0]
	for _, s := range subs {
		if !s.once {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(r.listeners, msg.Channel)
	} else {
		r.listeners[msg.Channel] = kept
	}
	r.mu.Unlock()

	for _, s := range targets {
		r.invoke(s.fn, msg)
	}
	return len(targets)
}

// invoke keeps one misbehaving listener from taking the dispatch loop down.
func (r *router) invoke(fn Listener, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Listener panicked", zap.String("channel", msg.Channel), zap.Any("panic", rec))
		}
	}()
	fn(msg)
}

func (r *router) handle(channel string, fn SyncHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.handlers, channel)
		return
	}
	r.handlers[channel] = fn
}

// serve runs the handler for channel and returns the detached result.
func (r *router) serve(ctx context.Context, channel string, args Args) (result any, err error) {
	r.mu.Lock()
	fn, ok := r.handlers[channel]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for %q", channel)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Handler panicked", zap.String("channel", channel), zap.Any("panic", rec))
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return fn(ctx, args)
}
