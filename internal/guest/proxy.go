// internal/guest/proxy.go
package guest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/ipc"
)

// ID identifies a remote window. The host assigns it; it is never reused
// while the window is alive.
type ID int64

// Locator supplies what a proxy needs from the local document: URL resolution
// and the document's own origin.
type Locator interface {
	Resolve(rawURL string) string
	Origin() string
}

// Window is the read-only face of a remote window handed to callers. There
// is deliberately no way to change the id or the closed flag through it.
type Window interface {
	ID() ID
	Closed() bool
	Close() error
	Focus() error
	Blur() error
	Print() error
	Location(ctx context.Context) (string, error)
	SetLocation(ctx context.Context, rawURL string) (any, error)
	PostMessage(message any, targetOrigin string) error
	Eval(args ...any) error
}

// Proxy is the local stand-in for a window living in another process. It
// holds nothing but the id and a closed flag; every operation is forwarded.
//
// Operations on a proxy that is already closed are still forwarded. The host
// owns the window table and ignores ids it no longer knows.
type Proxy struct {
	id        ID
	closed    atomic.Bool
	transport ipc.Transport
	locator   Locator
	logger    *zap.Logger
}

var _ Window = (*Proxy)(nil)

// ID implements Window.
func (p *Proxy) ID() ID { return p.id }

// Closed reports whether the host has announced this window's close. It
// flips once and never reverts.
func (p *Proxy) Closed() bool { return p.closed.Load() }

func (p *Proxy) markClosed() { p.closed.Store(true) }

func (p *Proxy) send(channel string, args ...any) error {
	if p.Closed() {
		p.logger.Debug("Forwarding request for a closed window", zap.String("channel", channel))
	}
	if err := p.transport.Send(channel, args...); err != nil {
		return fmt.Errorf("window %d: %s: %w", p.id, channel, err)
	}
	return nil
}

// Close asks the host to close the window. Closed() only turns true once
// the host confirms with a close notification.
func (p *Proxy) Close() error {
	return p.send(ipc.ChannelWindowCloseRequest, int64(p.id))
}

// Focus implements Window.
func (p *Proxy) Focus() error {
	return p.send(ipc.ChannelWindowMethodRequest, int64(p.id), ipc.MethodFocus)
}

// Blur implements Window.
func (p *Proxy) Blur() error {
	return p.send(ipc.ChannelWindowMethodRequest, int64(p.id), ipc.MethodBlur)
}

// Print implements Window.
func (p *Proxy) Print() error {
	return p.send(ipc.ChannelContentsMethodRequest, int64(p.id), ipc.MethodPrint)
}

// Location fetches the remote URL with a blocking round-trip.
func (p *Proxy) Location(ctx context.Context) (string, error) {
	if p.Closed() {
		p.logger.Debug("Reading location of a closed window")
	}
	res, err := p.transport.SendSync(ctx, ipc.ChannelContentsMethodSyncRequest, int64(p.id), ipc.MethodGetURL)
	if err != nil {
		return "", fmt.Errorf("window %d: get location: %w", p.id, err)
	}
	return cast.ToString(res), nil
}

// SetLocation resolves rawURL against the local document and asks the host
// to navigate the window there, returning whatever the host answers.
func (p *Proxy) SetLocation(ctx context.Context, rawURL string) (any, error) {
	resolved := p.locator.Resolve(rawURL)
	res, err := p.transport.SendSync(ctx, ipc.ChannelContentsMethodSyncRequest, int64(p.id), ipc.MethodLoadURL, resolved)
	if err != nil {
		return nil, fmt.Errorf("window %d: set location %q: %w", p.id, resolved, err)
	}
	return res, nil
}

// PostMessage relays message to the window. An empty targetOrigin means "*".
// The sender origin always comes from the local document.
func (p *Proxy) PostMessage(message any, targetOrigin string) error {
	if targetOrigin == "" {
		targetOrigin = "*"
	}
	return p.send(ipc.ChannelPostMessage, int64(p.id), message, targetOrigin, p.locator.Origin())
}

// Eval asks the window to execute script; args are passed through verbatim.
func (p *Proxy) Eval(args ...any) error {
	payload := make([]any, 0, len(args)+2)
	payload = append(payload, int64(p.id), ipc.MethodExecuteJavaScript)
	payload = append(payload, args...)
	return p.send(ipc.ChannelContentsMethodRequest, payload...)
}
