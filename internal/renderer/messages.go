// internal/renderer/messages.go
package renderer

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/events"
	"github.com/xkilldash9x/guestwin/internal/guest"
	"github.com/xkilldash9x/guestwin/internal/ipc"
)

// onPostMessage rebuilds a relayed message as a local message event. The
// source is resolved through the registry because a live window handle
// cannot travel on the wire. The event is dispatched directly on the window
// target; going through a proxy's PostMessage would send it back out.
func (r *Renderer) onPostMessage(msg ipc.Message) {
	sourceID, err := msg.Args.Int64(0)
	if err != nil {
		r.logger.Warn("Dropping message with unreadable source id", zap.Error(err))
		return
	}
	origin := msg.Args.StringOr(2, "")
	source := r.registry.GetOrCreate(guest.ID(sourceID))

	ev := events.NewMessageEvent(ipc.Plain(msg.Args.At(1)), origin, source)
	n := r.window.DispatchEvent(ev)
	r.logger.Debug("Message dispatched",
		zap.Int64("source_id", sourceID),
		zap.String("origin", origin),
		zap.Int("listeners", n),
	)
}
