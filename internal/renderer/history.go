// internal/renderer/history.go
package renderer

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/xkilldash9x/guestwin/internal/ipc"
)

// History drives the page's session history, which the host owns.
type History struct {
	transport ipc.Transport
	roundTrip func(context.Context) (context.Context, context.CancelFunc)
}

// Back steps one entry back.
func (h *History) Back() error {
	return h.send(ipc.NavGoBack)
}

// Forward steps one entry forward.
func (h *History) Forward() error {
	return h.send(ipc.NavGoForward)
}

// Go moves by offset entries. The offset goes to the host as given,
// fractional part included.
func (h *History) Go(offset float64) error {
	return h.send(ipc.NavGoToOffset, offset)
}

// Length asks the host for the number of history entries.
func (h *History) Length(ctx context.Context) (int, error) {
	ctx, cancel := h.roundTrip(ctx)
	defer cancel()
	res, err := h.transport.SendSync(ctx, ipc.ChannelNavigationSyncRequest, ipc.NavLength)
	if err != nil {
		return 0, fmt.Errorf("history length: %w", err)
	}
	n, err := cast.ToIntE(ipc.Plain(res))
	if err != nil {
		return 0, fmt.Errorf("history length: unexpected reply %v: %w", res, err)
	}
	return n, nil
}

func (h *History) send(op string, args ...any) error {
	if err := h.transport.Send(ipc.ChannelNavigationRequest, append([]any{op}, args...)...); err != nil {
		return fmt.Errorf("history %s: %w", op, err)
	}
	return nil
}
