// internal/jsbind/proxy.go
package jsbind

import (
	"github.com/dop251/goja"

	"github.com/xkilldash9x/guestwin/internal/guest"
)

// wrapWindow returns the script object for w. A window always maps to the
// same object, so event.source === the value open() returned.
func (b *Bridge) wrapWindow(w guest.Window) goja.Value {
	if w == nil {
		return goja.Null()
	}
	if obj, ok := b.proxies[w]; ok {
		return obj
	}
	b.pruneClosed()

	obj := b.vm.NewObject()
	if err := obj.DefineDataProperty("guestId", b.vm.ToValue(int64(w.ID())), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		b.throw(err)
	}
	b.defineGetter(obj, "closed", func() goja.Value { return b.vm.ToValue(w.Closed()) })

	getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value {
		loc, err := w.Location(b.current)
		if err != nil {
			b.throw(err)
		}
		return b.vm.ToValue(loc)
	})
	setter := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if _, err := w.SetLocation(b.current, argString(call, 0)); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	})
	if err := obj.DefineAccessorProperty("location", getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		b.throw(err)
	}

	b.set(obj, "close", b.forward(w.Close))
	b.set(obj, "focus", b.forward(w.Focus))
	b.set(obj, "blur", b.forward(w.Blur))
	b.set(obj, "print", b.forward(w.Print))
	b.set(obj, "postMessage", func(call goja.FunctionCall) goja.Value {
		if err := w.PostMessage(export(call.Argument(0)), argString(call, 1)); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	})
	b.set(obj, "eval", func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = export(a)
		}
		if err := w.Eval(args...); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	})

	b.proxies[w] = obj
	return obj
}

func (b *Bridge) forward(op func() error) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		if err := op(); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	}
}

// pruneClosed forgets objects of windows the host has closed. Scripts that
// still hold one keep it; a reopened id gets a fresh object.
func (b *Bridge) pruneClosed() {
	for w := range b.proxies {
		if w.Closed() {
			delete(b.proxies, w)
		}
	}
}
