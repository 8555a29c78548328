// internal/renderer/pipe_test.go
package renderer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/guestwin/internal/events"
	"github.com/xkilldash9x/guestwin/internal/ipc"
)

// stubHost answers just enough of the protocol to exercise the renderer
// end to end over an in-process pipe.
type stubHost struct {
	ep ipc.Endpoint

	mu   sync.Mutex
	next int64
	urls map[int64]string
}

func newStubHost(ep ipc.Endpoint) *stubHost {
	h := &stubHost{ep: ep, next: 1, urls: make(map[int64]string)}
	ep.Handle(ipc.ChannelWindowOpenRequest, func(_ context.Context, args ipc.Args) (any, error) {
		u, err := args.String(0)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		id := h.next
		h.next++
		h.urls[id] = u
		return id, nil
	})
	ep.Handle(ipc.ChannelContentsMethodSyncRequest, func(_ context.Context, args ipc.Args) (any, error) {
		id, err := args.Int64(0)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		switch args.StringOr(1, "") {
		case ipc.MethodGetURL:
			return h.urls[id], nil
		case ipc.MethodLoadURL:
			h.urls[id] = args.StringOr(2, "")
			return nil, nil
		}
		return nil, nil
	})
	return h
}

func newPipeRenderer(t *testing.T) (*Renderer, *stubHost, func()) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	local, remote := ipc.Pipe(ipc.Options{Logger: logger})
	host := newStubHost(remote)

	r, err := New(local, testConfig(), logger)
	require.NoError(t, err)
	return r, host, func() {
		r.Close()
		_ = local.Close()
	}
}

func TestOverPipe_OpenBlankAndNavigate(t *testing.T) {
	defer goleak.VerifyNone(t)
	r, host, cleanup := newPipeRenderer(t)
	defer cleanup()
	ctx := context.Background()

	first, err := r.Open(ctx, "", "", "")
	require.NoError(t, err)
	require.NotNil(t, first)
	loc, err := first.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", loc)

	second, err := r.Open(ctx, "", "named", "width=10")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	loc, err = second.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", loc)

	_, err = second.SetLocation(ctx, "../other.html")
	require.NoError(t, err)
	loc, err = second.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example/other.html", loc)

	host.mu.Lock()
	assert.Len(t, host.urls, 2)
	host.mu.Unlock()
}

func TestOverPipe_MessageFromUnknownSender(t *testing.T) {
	defer goleak.VerifyNone(t)
	r, host, cleanup := newPipeRenderer(t)
	defer cleanup()

	got := make(chan *events.MessageEvent, 1)
	r.Window().AddEventListener(events.TypeMessage, func(e events.Event) {
		got <- e.(*events.MessageEvent)
	})

	require.NoError(t, host.ep.Send(ipc.ChannelPostMessageNotify, 7, "hi", "https://a"))

	select {
	case ev := <-got:
		assert.Equal(t, "hi", ev.Data)
		assert.Equal(t, "https://a", ev.Origin)
		assert.Same(t, r.Registry().GetOrCreate(7), ev.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("message event was not dispatched")
	}
}

func TestOverPipe_RoundTripTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger := zaptest.NewLogger(t)
	local, remote := ipc.Pipe(ipc.Options{Logger: logger})
	defer local.Close()

	remote.Handle(ipc.ChannelWindowOpenRequest, func(ctx context.Context, _ ipc.Args) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	cfg := testConfig()
	cfg.RoundTripTimeout = 50 * time.Millisecond
	r, err := New(local, cfg, logger)
	require.NoError(t, err)
	defer r.Close()

	p, err := r.Open(context.Background(), "x.html", "", "")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
