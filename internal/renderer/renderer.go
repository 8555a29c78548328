// Package renderer is the page side of the window protocol. It owns the
// proxy registry for one page, opens windows, rebuilds inbound messages as
// local events and mirrors history and visibility from the host.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/config"
	"github.com/xkilldash9x/guestwin/internal/events"
	"github.com/xkilldash9x/guestwin/internal/guest"
	"github.com/xkilldash9x/guestwin/internal/ipc"
)

// ErrPromptUnsupported is returned by every call to Prompt.
var ErrPromptUnsupported = errors.New("prompt() is and will not be supported.")

// Renderer is the per-page context. Everything that needs the registry gets
// it from here; there is no package-level state.
type Renderer struct {
	transport ipc.Transport
	cfg       config.RendererConfig
	logger    *zap.Logger

	resolver   *Resolver
	registry   *guest.Registry
	window     *events.Target
	document   *events.Target
	history    *History
	visibility *Visibility
	opener     *guest.Proxy

	unsubscribe []func()
	closeOnce   sync.Once
}

// New wires a renderer to transport and starts listening for host
// notifications. Call Close to detach it.
func New(transport ipc.Transport, cfg config.RendererConfig, logger *zap.Logger) (*Renderer, error) {
	if transport == nil {
		return nil, errors.New("renderer: transport is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("renderer")

	resolver, err := NewResolver(cfg.DocumentURL)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		resolver:  resolver,
		registry:  guest.NewRegistry(transport, resolver, logger),
		window:    events.NewTarget("window", logger),
		document:  events.NewTarget("document", logger),
	}
	r.history = &History{transport: transport, roundTrip: r.roundTripContext}
	r.visibility = newVisibility(cfg.HiddenPage, r.document, logger)

	if cfg.OpenerID >= 0 {
		r.opener = r.registry.GetOrCreate(guest.ID(cfg.OpenerID))
	}

	r.unsubscribe = append(r.unsubscribe,
		transport.On(ipc.ChannelPostMessageNotify, r.onPostMessage),
		transport.On(ipc.ChannelVisibilityChangeNotify, r.onVisibilityChange),
	)

	logger.Debug("Renderer attached",
		zap.String("document_url", cfg.DocumentURL),
		zap.String("origin", resolver.Origin()),
		zap.Bool("hidden", cfg.HiddenPage),
		zap.Int64("opener_id", cfg.OpenerID),
	)
	return r, nil
}

// Close detaches the renderer's notification listeners. Proxies already
// handed out keep working for outbound calls.
func (r *Renderer) Close() {
	r.closeOnce.Do(func() {
		for _, fn := range r.unsubscribe {
			fn()
		}
	})
}

// Window is the page's window event target; message events land here.
func (r *Renderer) Window() *events.Target { return r.window }

// Document is the page's document event target; visibilitychange lands here.
func (r *Renderer) Document() *events.Target { return r.document }

// History forwards navigation of the page's own history to the host.
func (r *Renderer) History() *History { return r.history }

// Visibility exposes the cached document visibility.
func (r *Renderer) Visibility() *Visibility { return r.visibility }

// Registry returns the page's proxy registry.
func (r *Renderer) Registry() *guest.Registry { return r.registry }

// Resolver returns the page's URL resolver.
func (r *Renderer) Resolver() *Resolver { return r.resolver }

// Opener returns the window that opened this page, or nil.
func (r *Renderer) Opener() guest.Window {
	if r.opener == nil {
		return nil
	}
	return r.opener
}

// Alert shows a message box on the host and waits for it to be dismissed.
func (r *Renderer) Alert(ctx context.Context, message, title string) error {
	ctx, cancel := r.roundTripContext(ctx)
	defer cancel()
	if _, err := r.transport.SendSync(ctx, ipc.ChannelBrowserWindowAlert, message, title); err != nil {
		return fmt.Errorf("alert: %w", err)
	}
	return nil
}

// Confirm asks the host to show a confirmation dialog and returns its answer.
func (r *Renderer) Confirm(ctx context.Context, message, title string) (bool, error) {
	ctx, cancel := r.roundTripContext(ctx)
	defer cancel()
	res, err := r.transport.SendSync(ctx, ipc.ChannelBrowserWindowConfirm, message, title)
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	return truthy(ipc.Plain(res)), nil
}

// Prompt is not supported and always fails.
func (r *Renderer) Prompt(string, string) (string, error) {
	return "", ErrPromptUnsupported
}

// CloseWindow closes the page's own top-level window through the host.
// Guest instances keep the engine's close behavior, so for them this only
// logs.
func (r *Renderer) CloseWindow(ctx context.Context) error {
	if r.cfg.GuestInstance {
		r.logger.Debug("Guest instance close left to the embedder")
		return nil
	}
	ctx, cancel := r.roundTripContext(ctx)
	defer cancel()
	if _, err := r.transport.SendSync(ctx, ipc.ChannelBrowserWindowClose); err != nil {
		return fmt.Errorf("close window: %w", err)
	}
	return nil
}

// roundTripContext bounds a blocking request by the configured timeout.
func (r *Renderer) roundTripContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.cfg.RoundTripTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.RoundTripTimeout)
	}
	return context.WithCancel(ctx)
}
