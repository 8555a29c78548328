// internal/ipc/pipe.go
package ipc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options configures an endpoint.
type Options struct {
	Logger  *zap.Logger
	Metrics *Metrics
}

func (o Options) logger(name string) *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger.Named(name)
}

type delivery struct {
	kind    frameKind
	channel string
	args    Args
	ctx     context.Context
	reply   chan syncResult
}

type syncResult struct {
	value any
	err   error
}

// PipeEnd is one side of an in-process link created by Pipe. Everything that
// crosses it goes through the wire codec, exactly like the websocket
// transport, so no Go value is ever shared between the two sides.
type PipeEnd struct {
	logger  *zap.Logger
	metrics *Metrics
	router  *router
	inbox   *mailbox[delivery]
	peer    *PipeEnd

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Endpoint = (*PipeEnd)(nil)

// Pipe returns two connected endpoints, conventionally (renderer, host).
// Closing either end shuts both down.
func Pipe(opts Options) (*PipeEnd, *PipeEnd) {
	a := newPipeEnd(opts, "pipe.a")
	b := newPipeEnd(opts, "pipe.b")
	a.peer, b.peer = b, a
	a.start()
	b.start()
	return a, b
}

func newPipeEnd(opts Options, name string) *PipeEnd {
	logger := opts.logger(name)
	return &PipeEnd{
		logger:  logger,
		metrics: opts.Metrics,
		router:  newRouter(logger),
		inbox:   newMailbox[delivery](),
		done:    make(chan struct{}),
	}
}

func (p *PipeEnd) start() {
	p.wg.Add(1)
	go p.dispatchLoop()
}

func (p *PipeEnd) closed() bool {
	select {
	case <-p.done:
		return true
	case <-p.peer.done:
		return true
	default:
		return false
	}
}

// Send implements Transport.
func (p *PipeEnd) Send(channel string, args ...any) error {
	if p.closed() {
		p.metrics.failed(channel)
		return ErrClosed
	}
	detached, err := detachArgs(args)
	if err != nil {
		p.metrics.failed(channel)
		return err
	}
	p.metrics.sent(kindEvent, channel)
	p.peer.inbox.push(delivery{kind: kindEvent, channel: channel, args: detached})
	return nil
}

// SendSync implements Transport.
func (p *PipeEnd) SendSync(ctx context.Context, channel string, args ...any) (result any, err error) {
	started := time.Now()
	defer func() { p.metrics.observeRoundTrip(channel, started, err) }()

	if p.closed() {
		return nil, ErrClosed
	}
	detached, err := detachArgs(args)
	if err != nil {
		return nil, err
	}

	reply := make(chan syncResult, 1)
	p.metrics.sent(kindRequest, channel)
	p.peer.inbox.push(delivery{kind: kindRequest, channel: channel, args: detached, ctx: ctx, reply: reply})

	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	case <-p.peer.done:
		return nil, ErrClosed
	}
}

// On implements Transport.
func (p *PipeEnd) On(channel string, fn Listener) func() {
	return p.router.subscribe(channel, fn, false)
}

// Once implements Transport.
func (p *PipeEnd) Once(channel string, fn Listener) func() {
	return p.router.subscribe(channel, fn, true)
}

// Handle implements Endpoint.
func (p *PipeEnd) Handle(channel string, fn SyncHandler) {
	p.router.handle(channel, fn)
}

// Done implements Endpoint.
func (p *PipeEnd) Done() <-chan struct{} { return p.done }

// Close shuts down both ends and waits for their dispatch loops to exit.
// It must not be called from a listener or handler of this pipe.
func (p *PipeEnd) Close() error {
	p.shutdown()
	p.peer.shutdown()
	return nil
}

func (p *PipeEnd) shutdown() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *PipeEnd) dispatchLoop() {
	defer p.wg.Done()
	for {
		d, ok := p.inbox.pop(p.done)
		if !ok {
			return
		}
		select {
		case <-p.done:
			// Drop whatever is left; waiting callers observe done themselves.
			return
		default:
		}

		p.metrics.received(d.kind, d.channel)
		switch d.kind {
		case kindEvent:
			p.router.emit(Message{Channel: d.channel, Args: d.args})
		case kindRequest:
			d.reply <- p.answer(d)
		}
	}
}

func (p *PipeEnd) answer(d delivery) syncResult {
	if err := d.ctx.Err(); err != nil {
		return syncResult{err: err}
	}
	value, err := p.router.serve(d.ctx, d.channel, d.args)
	if err != nil {
		return syncResult{err: &RemoteError{Channel: d.channel, Message: err.Error()}}
	}
	detached, err := detach(value)
	if err != nil {
		return syncResult{err: &RemoteError{Channel: d.channel, Message: "unencodable result: " + err.Error()}}
	}
	return syncResult{value: detached}
}
