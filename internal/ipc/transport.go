// internal/ipc/transport.go
package ipc

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by every operation on a transport that has shut down,
// and by round-trips that were still waiting when it did.
var ErrClosed = errors.New("ipc: transport closed")

// Message is an inbound notification as seen by a listener.
type Message struct {
	Channel string
	Args    Args
}

// Listener receives notifications. Listeners registered on one transport run
// sequentially on its dispatch goroutine, in the order the peer sent them.
// Replies to SendSync do not pass through that queue and may overtake
// notifications still waiting to be dispatched.
type Listener func(msg Message)

// SyncHandler answers a blocking round-trip. The returned value is encoded
// back to the caller; a non-nil error reaches the caller as a *RemoteError.
type SyncHandler func(ctx context.Context, args Args) (any, error)

// Transport is the renderer's view of the link to its host: fire-and-forget
// sends, blocking round-trips and inbound subscriptions.
type Transport interface {
	// Send queues a notification and returns without waiting for delivery.
	Send(channel string, args ...any) error
	// SendSync blocks until the peer answers, ctx ends or the transport closes.
	SendSync(ctx context.Context, channel string, args ...any) (any, error)
	// On subscribes fn to channel until the returned func is called.
	On(channel string, fn Listener) (unsubscribe func())
	// Once subscribes fn for the first delivery on channel only.
	Once(channel string, fn Listener) (unsubscribe func())
}

// Endpoint is one side of a symmetric link. Hosts use the Handle side;
// renderers mostly use the Transport side.
type Endpoint interface {
	Transport
	// Handle installs the answerer for round-trips on channel, replacing any
	// previous one.
	Handle(channel string, fn SyncHandler)
	// Done is closed once the endpoint has shut down.
	Done() <-chan struct{}
	Close() error
}

// RemoteError carries a failure reported by the peer's SyncHandler.
type RemoteError struct {
	Channel string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ipc: remote handler for %q failed: %s", e.Channel, e.Message)
}

// ArgError describes an argument that is missing or has the wrong shape.
type ArgError struct {
	Index int
	Want  string
	Err   error
}

func (e *ArgError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ipc: argument %d: missing %s", e.Index, e.Want)
	}
	return fmt.Sprintf("ipc: argument %d: want %s: %v", e.Index, e.Want, e.Err)
}

func (e *ArgError) Unwrap() error { return e.Err }
