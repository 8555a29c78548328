// internal/ipc/conn.go
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ConnOptions configures a websocket endpoint.
type ConnOptions struct {
	Options
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	// SendRate caps outbound frames per second; zero means unlimited.
	SendRate  float64
	SendBurst int
	// Setup runs before the first inbound frame is dispatched, so handlers
	// and listeners it installs see every frame the peer sends. An error
	// closes the connection and is returned by Dial or Accept.
	Setup func(*Conn) error
}

var upgrader = websocket.Upgrader{
	// Renderers are local processes; origin checks belong to the embedder.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn is an Endpoint over a single websocket. One goroutine reads, one
// writes and one dispatches inbound events and requests in arrival order.
// Replies are matched on the read goroutine, so a listener blocked in
// SendSync never stalls the reply it is waiting for.
type Conn struct {
	ws           *websocket.Conn
	logger       *zap.Logger
	metrics      *Metrics
	router       *router
	limiter      *rate.Limiter
	writeTimeout time.Duration

	inbox  *mailbox[*frame]
	outbox *mailbox[[]byte]

	pendingMu sync.Mutex
	pending   map[string]chan *frame

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	group     errgroup.Group
}

var _ Endpoint = (*Conn)(nil)

// Dial connects to a host endpoint at url.
func Dial(ctx context.Context, url string, opts ConnOptions) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", url, err)
	}
	return NewConn(ws, opts)
}

// Accept upgrades an HTTP request to a websocket endpoint.
func Accept(w http.ResponseWriter, r *http.Request, opts ConnOptions) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: upgrade: %w", err)
	}
	return NewConn(ws, opts)
}

// NewConn wraps an established websocket and starts its loops. Frames read
// before opts.Setup returns wait in the inbox.
func NewConn(ws *websocket.Conn, opts ConnOptions) (*Conn, error) {
	logger := opts.logger("conn").With(zap.String("remote", ws.RemoteAddr().String()))
	ctx, cancel := context.WithCancel(context.Background())

	c := &Conn{
		ws:           ws,
		logger:       logger,
		metrics:      opts.Metrics,
		router:       newRouter(logger),
		writeTimeout: opts.WriteTimeout,
		inbox:        newMailbox[*frame](),
		outbox:       newMailbox[[]byte](),
		pending:      make(map[string]chan *frame),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}
	if opts.SendRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.SendRate), opts.SendBurst)
	}

	c.group.Go(c.readLoop)
	c.group.Go(c.writeLoop)
	if opts.Setup != nil {
		if err := opts.Setup(c); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("ipc: setup: %w", err)
		}
	}
	c.group.Go(c.dispatchLoop)
	return c, nil
}

func (c *Conn) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) enqueue(f *frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(c.ctx); err != nil {
			return ErrClosed
		}
	}
	c.metrics.sent(f.Kind, f.Channel)
	c.outbox.push(data)
	return nil
}

// Send implements Transport.
func (c *Conn) Send(channel string, args ...any) error {
	if c.isDone() {
		c.metrics.failed(channel)
		return ErrClosed
	}
	if err := c.enqueue(&frame{Kind: kindEvent, Channel: channel, Args: args}); err != nil {
		c.metrics.failed(channel)
		return err
	}
	return nil
}

// SendSync implements Transport.
func (c *Conn) SendSync(ctx context.Context, channel string, args ...any) (result any, err error) {
	started := time.Now()
	defer func() { c.metrics.observeRoundTrip(channel, started, err) }()

	if c.isDone() {
		return nil, ErrClosed
	}

	id := uuid.NewString()
	reply := make(chan *frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.enqueue(&frame{Kind: kindRequest, ID: id, Channel: channel, Args: args}); err != nil {
		return nil, err
	}

	select {
	case f := <-reply:
		if f.Error != "" {
			return nil, &RemoteError{Channel: channel, Message: f.Error}
		}
		return f.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// On implements Transport.
func (c *Conn) On(channel string, fn Listener) func() {
	return c.router.subscribe(channel, fn, false)
}

// Once implements Transport.
func (c *Conn) Once(channel string, fn Listener) func() {
	return c.router.subscribe(channel, fn, true)
}

// Handle implements Endpoint.
func (c *Conn) Handle(channel string, fn SyncHandler) {
	c.router.handle(channel, fn)
}

// Done implements Endpoint.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close sends a close frame, tears the connection down and waits for the
// loops to exit.
func (c *Conn) Close() error {
	c.shutdown(true)
	return c.Wait()
}

// Wait blocks until the connection is gone and reports why, nil for an
// orderly close by either side.
func (c *Conn) Wait() error {
	return c.group.Wait()
}

func (c *Conn) shutdown(graceful bool) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = c.ws.Close()
	})
}

func (c *Conn) readLoop() error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			wasOpen := !c.isDone()
			c.shutdown(false)
			if !wasOpen || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			c.logger.Warn("Transport read failed", zap.Error(err))
			return fmt.Errorf("ipc: read: %w", err)
		}

		f, err := decodeFrame(data)
		if err != nil {
			c.logger.Warn("Dropping malformed frame", zap.Error(err))
			continue
		}
		c.metrics.received(f.Kind, f.Channel)

		if f.Kind == kindReply {
			c.resolve(f)
			continue
		}
		c.inbox.push(f)
	}
}

func (c *Conn) resolve(f *frame) {
	c.pendingMu.Lock()
	reply, ok := c.pending[f.ID]
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug("Reply for unknown or abandoned request", zap.String("id", f.ID))
		return
	}
	select {
	case reply <- f:
	default:
		c.logger.Debug("Dropping duplicate reply", zap.String("id", f.ID))
	}
}

func (c *Conn) writeLoop() error {
	for {
		data, ok := c.outbox.pop(c.done)
		if !ok || c.isDone() {
			return nil
		}
		if c.writeTimeout > 0 {
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			wasOpen := !c.isDone()
			c.shutdown(false)
			if !wasOpen || errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			c.logger.Warn("Transport write failed", zap.Error(err))
			return fmt.Errorf("ipc: write: %w", err)
		}
	}
}

func (c *Conn) dispatchLoop() error {
	for {
		f, ok := c.inbox.pop(c.done)
		if !ok || c.isDone() {
			return nil
		}
		switch f.Kind {
		case kindEvent:
			c.router.emit(Message{Channel: f.Channel, Args: Args(f.Args)})
		case kindRequest:
			c.reply(f)
		}
	}
}

func (c *Conn) reply(req *frame) {
	resp := &frame{Kind: kindReply, ID: req.ID, Channel: req.Channel}
	value, err := c.router.serve(c.ctx, req.Channel, Args(req.Args))
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = value
	}
	if err := c.enqueue(resp); err != nil {
		// An unencodable result still owes the caller an answer.
		resp.Result = nil
		resp.Error = "unencodable result: " + err.Error()
		if err := c.enqueue(resp); err != nil {
			c.logger.Error("Failed to answer request", zap.String("channel", req.Channel), zap.Error(err))
		}
	}
}
