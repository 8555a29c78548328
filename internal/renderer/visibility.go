// internal/renderer/visibility.go
package renderer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/events"
	"github.com/xkilldash9x/guestwin/internal/ipc"
)

// Visibility states pushed by the host.
const (
	StateVisible = "visible"
	StateHidden  = "hidden"
)

// Visibility caches the document's visibility. It changes only when the host
// says so and may lag the real state until the notification arrives.
type Visibility struct {
	target *events.Target
	logger *zap.Logger

	mu    sync.RWMutex
	state string
}

func newVisibility(hidden bool, target *events.Target, logger *zap.Logger) *Visibility {
	state := StateVisible
	if hidden {
		state = StateHidden
	}
	return &Visibility{target: target, logger: logger.Named("visibility"), state: state}
}

// State returns the cached visibility state.
func (v *Visibility) State() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Hidden is true for every state other than "visible".
func (v *Visibility) Hidden() bool {
	return v.State() != StateVisible
}

// Update stores state and dispatches one visibilitychange event if it
// differs from the cached value. It reports whether an event was dispatched.
// States other than "visible" and "hidden" are logged and ignored.
func (v *Visibility) Update(state string) bool {
	if state != StateVisible && state != StateHidden {
		v.logger.Warn("Ignoring unknown visibility state", zap.String("state", state))
		return false
	}
	v.mu.Lock()
	if v.state == state {
		v.mu.Unlock()
		return false
	}
	prev := v.state
	v.state = state
	v.mu.Unlock()

	v.logger.Debug("Visibility changed", zap.String("from", prev), zap.String("to", state))
	v.target.DispatchEvent(events.NewEvent(events.TypeVisibilityChange))
	return true
}

func (r *Renderer) onVisibilityChange(msg ipc.Message) {
	state, err := msg.Args.String(0)
	if err != nil {
		r.logger.Warn("Dropping visibility notification", zap.Error(err))
		return
	}
	r.visibility.Update(state)
}
