// internal/jsbind/window.go
package jsbind

import (
	"math"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/events"
)

// initializeRuntime installs the window globals. The global object doubles
// as window and self.
func (b *Bridge) initializeRuntime() {
	global := b.vm.GlobalObject()
	b.set(global, "window", global)
	b.set(global, "self", global)

	b.set(global, "open", b.open)
	b.set(global, "close", b.closeWindow)
	b.set(global, "alert", b.alert)
	b.set(global, "confirm", b.confirm)
	b.set(global, "prompt", b.prompt)
	b.set(global, "addEventListener", b.addEventListener(b.renderer.Window()))
	b.set(global, "removeEventListener", b.removeEventListener(b.renderer.Window()))

	if opener := b.renderer.Opener(); opener != nil {
		b.set(global, "opener", b.wrapWindow(opener))
	} else {
		b.set(global, "opener", goja.Null())
	}

	location := b.vm.NewObject()
	b.set(location, "href", b.renderer.Resolver().DocumentURL())
	b.set(location, "origin", b.renderer.Resolver().Origin())
	b.set(global, "location", location)

	b.set(global, "history", b.newHistory())
	b.set(global, "document", b.newDocument())
	b.initConsole()
}

func (b *Bridge) set(obj *goja.Object, name string, value any) {
	if err := obj.Set(name, value); err != nil {
		b.logger.Error("Failed to set script property", zap.String("name", name), zap.Error(err))
	}
}

func (b *Bridge) defineGetter(obj *goja.Object, name string, getter func() goja.Value) {
	fn := b.vm.ToValue(func(goja.FunctionCall) goja.Value { return getter() })
	if err := obj.DefineAccessorProperty(name, fn, goja.Undefined(), goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		b.logger.Error("Failed to define getter", zap.String("name", name), zap.Error(err))
	}
}

// open(url, name, features) returns a window object or null on refusal.
func (b *Bridge) open(call goja.FunctionCall) goja.Value {
	p, err := b.renderer.Open(b.current, argString(call, 0), argString(call, 1), argString(call, 2))
	if err != nil {
		b.throw(err)
	}
	if p == nil {
		return goja.Null()
	}
	return b.wrapWindow(p)
}

func (b *Bridge) closeWindow(goja.FunctionCall) goja.Value {
	if err := b.renderer.CloseWindow(b.current); err != nil {
		b.throw(err)
	}
	return goja.Undefined()
}

func (b *Bridge) alert(call goja.FunctionCall) goja.Value {
	if err := b.renderer.Alert(b.current, argString(call, 0), argString(call, 1)); err != nil {
		b.throw(err)
	}
	return goja.Undefined()
}

func (b *Bridge) confirm(call goja.FunctionCall) goja.Value {
	ok, err := b.renderer.Confirm(b.current, argString(call, 0), argString(call, 1))
	if err != nil {
		b.throw(err)
	}
	return b.vm.ToValue(ok)
}

func (b *Bridge) prompt(call goja.FunctionCall) goja.Value {
	_, err := b.renderer.Prompt(argString(call, 0), argString(call, 1))
	b.throw(err)
	return goja.Undefined()
}

func (b *Bridge) newHistory() *goja.Object {
	h := b.renderer.History()
	obj := b.vm.NewObject()
	b.set(obj, "back", func(goja.FunctionCall) goja.Value {
		if err := h.Back(); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	})
	b.set(obj, "forward", func(goja.FunctionCall) goja.Value {
		if err := h.Forward(); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	})
	b.set(obj, "go", func(call goja.FunctionCall) goja.Value {
		offset := call.Argument(0).ToFloat()
		if math.IsNaN(offset) || math.IsInf(offset, 0) {
			// history.go() and history.go(undefined) mean the current entry.
			offset = 0
		}
		if err := h.Go(offset); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	})
	b.defineGetter(obj, "length", func() goja.Value {
		n, err := h.Length(b.current)
		if err != nil {
			b.throw(err)
		}
		return b.vm.ToValue(n)
	})
	return obj
}

func (b *Bridge) newDocument() *goja.Object {
	v := b.renderer.Visibility()
	obj := b.vm.NewObject()
	b.defineGetter(obj, "hidden", func() goja.Value { return b.vm.ToValue(v.Hidden()) })
	b.defineGetter(obj, "visibilityState", func() goja.Value { return b.vm.ToValue(v.State()) })
	b.set(obj, "addEventListener", b.addEventListener(b.renderer.Document()))
	b.set(obj, "removeEventListener", b.removeEventListener(b.renderer.Document()))
	return obj
}

func (b *Bridge) initConsole() {
	console := b.vm.NewObject()
	logger := b.logger.Named("console")
	b.set(console, "log", func(call goja.FunctionCall) goja.Value {
		logger.Info(joinArgs(call))
		return goja.Undefined()
	})
	b.set(console, "info", func(call goja.FunctionCall) goja.Value {
		logger.Info(joinArgs(call))
		return goja.Undefined()
	})
	b.set(console, "debug", func(call goja.FunctionCall) goja.Value {
		logger.Debug(joinArgs(call))
		return goja.Undefined()
	})
	b.set(console, "warn", func(call goja.FunctionCall) goja.Value {
		logger.Warn(joinArgs(call))
		return goja.Undefined()
	})
	b.set(console, "error", func(call goja.FunctionCall) goja.Value {
		logger.Error(joinArgs(call))
		return goja.Undefined()
	})
	b.set(b.vm.GlobalObject(), "console", console)
}

// addEventListener returns the script-facing addEventListener for target.
// The renderer fires events on its own goroutines; the script function is
// only ever called from the loop.
func (b *Bridge) addEventListener(target *events.Target) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		typ := argString(call, 0)
		fnValue := call.Argument(1)
		fn, ok := goja.AssertFunction(fnValue)
		if !ok {
			return goja.Undefined()
		}
		for _, l := range b.listeners {
			if l.target == target && l.typ == typ && l.fn.StrictEquals(fnValue) {
				return goja.Undefined()
			}
		}
		remove := target.AddEventListener(typ, func(ev events.Event) {
			b.jobs.push(func() {
				if _, err := fn(goja.Undefined(), b.eventValue(ev)); err != nil {
					b.logger.Warn("Event listener threw", zap.String("type", ev.Type()), zap.Error(err))
				}
			})
		})
		b.listeners = append(b.listeners, &jsListener{target: target, typ: typ, fn: fnValue, remove: remove})
		return goja.Undefined()
	}
}

func (b *Bridge) removeEventListener(target *events.Target) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		typ := argString(call, 0)
		fnValue := call.Argument(1)
		for i, l := range b.listeners {
			if l.target == target && l.typ == typ && l.fn.StrictEquals(fnValue) {
				l.remove()
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				break
			}
		}
		return goja.Undefined()
	}
}

func (b *Bridge) eventValue(ev events.Event) goja.Value {
	obj := b.vm.NewObject()
	b.set(obj, "type", ev.Type())
	if msg, ok := ev.(*events.MessageEvent); ok {
		b.set(obj, "data", msg.Data)
		b.set(obj, "origin", msg.Origin)
		if msg.Source != nil {
			b.set(obj, "source", b.wrapWindow(msg.Source))
		} else {
			b.set(obj, "source", goja.Null())
		}
	}
	return obj
}
