// internal/guest/registry.go
package guest

import (
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/ipc"
)

// Registry maps window ids to their single local Proxy. One registry exists
// per owning page and is injected wherever proxies are minted.
type Registry struct {
	transport ipc.Transport
	locator   Locator
	logger    *zap.Logger

	mu      sync.Mutex
	proxies map[ID]*Proxy
}

// NewRegistry creates an empty registry bound to transport.
func NewRegistry(transport ipc.Transport, locator Locator, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		transport: transport,
		locator:   locator,
		logger:    logger.Named("registry"),
		proxies:   make(map[ID]*Proxy),
	}
}

// GetOrCreate returns the proxy for id, creating and registering it on first
// use. Creation installs a one-shot listener for the window's close
// notification. Lookup, insert and subscription happen under one lock, so
// concurrent callers always observe the same instance.
func (r *Registry) GetOrCreate(id ID) *Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.proxies[id]; ok {
		return p
	}

	p := &Proxy{
		id:        id,
		transport: r.transport,
		locator:   r.locator,
		logger:    r.logger.With(zap.Int64("window_id", int64(id))),
	}
	r.proxies[id] = p
	r.transport.Once(ipc.WindowClosedChannel(int64(id)), func(ipc.Message) {
		r.Remove(id)
		p.markClosed()
		p.logger.Debug("Window closed")
	})
	r.logger.Debug("Proxy created", zap.Int64("window_id", int64(id)))
	return p
}

// Remove drops id from the registry unconditionally.
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	delete(r.proxies, id)
	r.mu.Unlock()
}

// Lookup returns the registered proxy for id without creating one.
func (r *Registry) Lookup(id ID) (*Proxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proxies[id]
	return p, ok
}

// Len reports how many proxies are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}
