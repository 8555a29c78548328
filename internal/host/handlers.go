// internal/host/handlers.go
package host

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/ipc"
)

// install answers every renderer request arriving on ep. self is the window
// the renderer on ep is showing.
func (m *Manager) install(ep ipc.Endpoint, self int64) {
	logger := m.logger.With(zap.Int64("caller", self))

	ep.On(ipc.ChannelWindowCloseRequest, func(msg ipc.Message) {
		id, err := msg.Args.Int64(0)
		if err != nil {
			logger.Warn("Bad close request", zap.Error(err))
			return
		}
		if err := m.CloseWindow(id); err != nil {
			logger.Debug("Close request ignored", zap.Error(err))
		}
	})

	ep.On(ipc.ChannelWindowMethodRequest, func(msg ipc.Message) {
		id, err := msg.Args.Int64(0)
		if err != nil {
			logger.Warn("Bad window method request", zap.Error(err))
			return
		}
		method := msg.Args.StringOr(1, "")
		err = m.withWindow(id, func(w *window) error {
			switch method {
			case ipc.MethodFocus:
				w.Focused = true
			case ipc.MethodBlur:
				w.Focused = false
			default:
				return fmt.Errorf("unsupported window method %q", method)
			}
			return nil
		})
		if err != nil {
			logger.Debug("Window method ignored", zap.String("method", method), zap.Error(err))
		}
	})

	ep.On(ipc.ChannelContentsMethodRequest, func(msg ipc.Message) {
		id, err := msg.Args.Int64(0)
		if err != nil {
			logger.Warn("Bad contents method request", zap.Error(err))
			return
		}
		method := msg.Args.StringOr(1, "")
		err = m.withWindow(id, func(w *window) error {
			switch method {
			case ipc.MethodPrint:
				w.Prints++
			case ipc.MethodExecuteJavaScript:
				script, _ := ipc.Plain([]any(msg.Args.Tail(2))).([]any)
				w.Scripts = append(w.Scripts, script)
			default:
				return fmt.Errorf("unsupported contents method %q", method)
			}
			return nil
		})
		if err != nil {
			logger.Debug("Contents method ignored", zap.String("method", method), zap.Error(err))
		}
	})

	ep.Handle(ipc.ChannelContentsMethodSyncRequest, func(_ context.Context, args ipc.Args) (any, error) {
		id, err := args.Int64(0)
		if err != nil {
			return nil, err
		}
		method := args.StringOr(1, "")
		var result any
		err = m.withWindow(id, func(w *window) error {
			switch method {
			case ipc.MethodGetURL:
				result = w.url()
			case ipc.MethodLoadURL:
				u, err := args.String(2)
				if err != nil {
					return err
				}
				w.navigate(u)
			default:
				return fmt.Errorf("unsupported contents method %q", method)
			}
			return nil
		})
		return result, err
	})

	ep.On(ipc.ChannelPostMessage, func(msg ipc.Message) {
		to, err := msg.Args.Int64(0)
		if err != nil {
			logger.Warn("Bad postMessage request", zap.Error(err))
			return
		}
		m.PostMessage(self, to, ipc.Plain(msg.Args.At(1)), msg.Args.StringOr(2, "*"), msg.Args.StringOr(3, ""))
	})

	ep.Handle(ipc.ChannelWindowOpenRequest, func(_ context.Context, args ipc.Args) (any, error) {
		u := args.StringOr(0, "")
		name := args.StringOr(1, "")
		if disposition := args.StringOr(2, ""); disposition != ipc.DispositionNewWindow {
			logger.Debug("Unexpected disposition", zap.String("disposition", disposition))
		}
		raw, _ := args.Map(3)
		options, _ := ipc.Plain(raw).(map[string]any)
		additional, _ := args.Strings(4)

		id, ok := m.Open(self, u, name, options, additional)
		if !ok {
			logger.Info("Window open refused", zap.String("url", u), zap.Int("max_windows", m.cfg.MaxWindows))
			return false, nil
		}
		logger.Info("Window opened", zap.Int64("window_id", id), zap.String("url", u))
		return id, nil
	})

	ep.On(ipc.ChannelNavigationRequest, func(msg ipc.Message) {
		op := msg.Args.StringOr(0, "")
		err := m.withWindow(self, func(w *window) error {
			offset := 0
			switch op {
			case ipc.NavGoBack:
				offset = -1
			case ipc.NavGoForward:
				offset = 1
			case ipc.NavGoToOffset:
				// Fractional offsets truncate toward zero.
				n, err := msg.Args.Float64(1)
				if err != nil {
					return err
				}
				offset = int(n)
			default:
				return fmt.Errorf("unsupported navigation %q", op)
			}
			target := w.Index + offset
			if target < 0 || target >= len(w.History) {
				return nil
			}
			w.Index = target
			w.URL = w.History[target]
			return nil
		})
		if err != nil {
			logger.Debug("Navigation ignored", zap.String("operation", op), zap.Error(err))
		}
	})

	ep.Handle(ipc.ChannelNavigationSyncRequest, func(_ context.Context, args ipc.Args) (any, error) {
		op := args.StringOr(0, "")
		if op != ipc.NavLength {
			return nil, fmt.Errorf("unsupported navigation query %q", op)
		}
		var n int
		err := m.withWindow(self, func(w *window) error {
			n = len(w.History)
			return nil
		})
		return n, err
	})

	ep.Handle(ipc.ChannelBrowserWindowClose, func(context.Context, ipc.Args) (any, error) {
		return nil, m.CloseWindow(self)
	})

	ep.Handle(ipc.ChannelBrowserWindowAlert, func(_ context.Context, args ipc.Args) (any, error) {
		logger.Info("Alert", zap.String("message", args.StringOr(0, "")), zap.String("title", args.StringOr(1, "")))
		return nil, nil
	})

	ep.Handle(ipc.ChannelBrowserWindowConfirm, func(_ context.Context, args ipc.Args) (any, error) {
		logger.Info("Confirm",
			zap.String("message", args.StringOr(0, "")),
			zap.String("title", args.StringOr(1, "")),
			zap.Bool("answer", m.cfg.ConfirmResult),
		)
		return m.cfg.ConfirmResult, nil
	})
}
