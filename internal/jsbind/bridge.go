// Package jsbind exposes a renderer to scripts running in a goja runtime:
// window.open, opener, history, document visibility, dialogs and message
// events, with window proxies wrapped as script objects.
package jsbind

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/events"
	"github.com/xkilldash9x/guestwin/internal/guest"
	"github.com/xkilldash9x/guestwin/internal/renderer"
)

// ErrBridgeClosed is returned by RunScript once the bridge has shut down.
var ErrBridgeClosed = errors.New("jsbind: bridge closed")

// Bridge owns a goja runtime and a goroutine that runs every piece of script
// work in order: scripts submitted with RunScript and listeners fired by
// renderer events. The runtime is never touched from any other goroutine.
type Bridge struct {
	vm       *goja.Runtime
	renderer *renderer.Renderer
	logger   *zap.Logger

	jobs    *jobQueue
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	running atomic.Uint64
	nextJob atomic.Uint64

	// Loop goroutine only.
	current   context.Context
	proxies   map[guest.Window]*goja.Object
	listeners []*jsListener
}

type jsListener struct {
	target *events.Target
	typ    string
	fn     goja.Value
	remove func()
}

type scriptResult struct {
	value any
	err   error
}

// New creates a runtime bound to r, installs the window globals and starts
// the loop. Close releases it.
func New(r *renderer.Renderer, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		vm:       goja.New(),
		renderer: r,
		logger:   logger.Named("jsbind"),
		jobs:     newJobQueue(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		current:  ctx,
		proxies:  make(map[guest.Window]*goja.Object),
	}
	b.initializeRuntime()

	b.wg.Add(1)
	go b.loop()
	return b
}

// RunScript evaluates src on the loop and returns the exported completion
// value. When ctx ends first the script is interrupted and ctx's error is
// returned.
func (b *Bridge) RunScript(ctx context.Context, name, src string) (any, error) {
	token := b.nextJob.Add(1)
	res := make(chan scriptResult, 1)

	b.jobs.push(func() {
		if err := ctx.Err(); err != nil {
			res <- scriptResult{err: err}
			return
		}
		b.running.Store(token)
		b.current = ctx
		defer func() {
			b.current = b.ctx
			b.running.Store(0)
		}()

		v, err := b.vm.RunScript(name, src)
		if err != nil {
			res <- scriptResult{err: fmt.Errorf("jsbind: %s: %w", name, err)}
			return
		}
		res <- scriptResult{value: export(v)}
	})

	select {
	case r := <-res:
		return r.value, r.err
	case <-b.done:
		return nil, ErrBridgeClosed
	case <-ctx.Done():
	}

	if b.running.Load() == token {
		b.vm.Interrupt(ctx.Err())
	}
	select {
	case <-res:
	case <-b.done:
		return nil, ErrBridgeClosed
	}
	return nil, ctx.Err()
}

// Close stops the loop, detaches every script listener and cancels pending
// blocking calls. It is safe to call more than once.
func (b *Bridge) Close() {
	b.once.Do(func() {
		b.cancel()
		close(b.done)
		b.vm.Interrupt(ErrBridgeClosed)
		b.wg.Wait()
		for _, l := range b.listeners {
			l.remove()
		}
		b.listeners = nil
	})
}

func (b *Bridge) loop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.jobs.ready:
		}
		for job := b.jobs.next(); job != nil; job = b.jobs.next() {
			select {
			case <-b.done:
				return
			default:
			}
			b.vm.ClearInterrupt()
			b.runJob(job)
		}
	}
}

func (b *Bridge) runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Script job panicked", zap.Any("panic", r))
		}
	}()
	job()
}

// throw raises err as a script exception.
func (b *Bridge) throw(err error) {
	panic(b.vm.NewGoError(err))
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func argString(call goja.FunctionCall, i int) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func joinArgs(call goja.FunctionCall) string {
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
