// internal/ipc/pipe_test.go
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func newTestPipe(t *testing.T) (*PipeEnd, *PipeEnd) {
	t.Helper()
	a, b := Pipe(Options{Logger: zaptest.NewLogger(t)})
	t.Cleanup(func() { _ = a.Close() })
	return a, b
}

// collect subscribes to channel and forwards every message to the returned channel.
func collect(t *testing.T, tr Transport, channel string) <-chan Message {
	t.Helper()
	out := make(chan Message, 16)
	unsubscribe := tr.On(channel, func(msg Message) { out <- msg })
	t.Cleanup(unsubscribe)
	return out
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestPipe_SendDeliversInOrder(t *testing.T) {
	renderer, host := newTestPipe(t)
	got := collect(t, host, ChannelNavigationRequest)

	require.NoError(t, renderer.Send(ChannelNavigationRequest, NavGoBack))
	require.NoError(t, renderer.Send(ChannelNavigationRequest, NavGoToOffset, -2))
	require.NoError(t, renderer.Send(ChannelNavigationRequest, NavGoForward))

	first := receive(t, got)
	second := receive(t, got)
	third := receive(t, got)

	assert.Equal(t, NavGoBack, first.Args.StringOr(0, ""))
	assert.Equal(t, NavGoToOffset, second.Args.StringOr(0, ""))
	offset, err := second.Args.Int64(1)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), offset)
	assert.Equal(t, NavGoForward, third.Args.StringOr(0, ""))
}

func TestPipe_ArgumentsAreDetached(t *testing.T) {
	renderer, host := newTestPipe(t)
	got := collect(t, host, ChannelPostMessage)

	payload := map[string]any{"count": 3}
	require.NoError(t, renderer.Send(ChannelPostMessage, 7, payload, "*", "https://a"))
	payload["count"] = 99

	msg := receive(t, got)
	data, err := msg.Args.Map(1)
	require.NoError(t, err)
	assert.Equal(t, json.Number("3"), data["count"], "receiver must see the encoded snapshot, not the live map")
}

func TestPipe_SendSync(t *testing.T) {
	renderer, host := newTestPipe(t)

	host.Handle(ChannelNavigationSyncRequest, func(ctx context.Context, args Args) (any, error) {
		op, err := args.String(0)
		if err != nil {
			return nil, err
		}
		if op != NavLength {
			return nil, errors.New("unsupported operation " + op)
		}
		return 4, nil
	})

	t.Run("returns the handler result", func(t *testing.T) {
		res, err := renderer.SendSync(context.Background(), ChannelNavigationSyncRequest, NavLength)
		require.NoError(t, err)
		assert.Equal(t, json.Number("4"), res)
	})

	t.Run("handler errors become RemoteError", func(t *testing.T) {
		_, err := renderer.SendSync(context.Background(), ChannelNavigationSyncRequest, "reload")
		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, ChannelNavigationSyncRequest, remote.Channel)
		assert.Contains(t, remote.Message, "unsupported operation reload")
	})

	t.Run("missing handler", func(t *testing.T) {
		_, err := renderer.SendSync(context.Background(), ChannelWindowOpenRequest)
		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Contains(t, remote.Message, "no handler registered")
	})
}

func TestPipe_SendSyncHonorsContext(t *testing.T) {
	renderer, host := newTestPipe(t)

	release := make(chan struct{})
	host.Handle(ChannelBrowserWindowConfirm, func(ctx context.Context, args Args) (any, error) {
		<-release
		return true, nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := renderer.SendSync(ctx, ChannelBrowserWindowConfirm, "sure?", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipe_SyncAndAsyncShareOneQueue(t *testing.T) {
	renderer, host := newTestPipe(t)

	var mu sync.Mutex
	var order []string
	host.On(ChannelWindowCloseRequest, func(msg Message) {
		mu.Lock()
		order = append(order, "close")
		mu.Unlock()
	})
	host.Handle(ChannelContentsMethodSyncRequest, func(ctx context.Context, args Args) (any, error) {
		mu.Lock()
		order = append(order, "getURL")
		mu.Unlock()
		return "about:blank", nil
	})

	require.NoError(t, renderer.Send(ChannelWindowCloseRequest, 1))
	_, err := renderer.SendSync(context.Background(), ChannelContentsMethodSyncRequest, 1, MethodGetURL)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"close", "getURL"}, order)
}

func TestPipe_ReplyMayOvertakeQueuedNotification(t *testing.T) {
	renderer, host := newTestPipe(t)

	release := make(chan struct{})
	var finished atomic.Bool
	renderer.On(ChannelVisibilityChangeNotify, func(Message) {
		<-release
		finished.Store(true)
	})
	host.Handle(ChannelContentsMethodSyncRequest, func(ctx context.Context, args Args) (any, error) {
		if err := host.Send(ChannelVisibilityChangeNotify, "hidden"); err != nil {
			return nil, err
		}
		return "about:blank", nil
	})

	res, err := renderer.SendSync(context.Background(), ChannelContentsMethodSyncRequest, 1, MethodGetURL)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", res)
	assert.False(t, finished.Load(), "the reply is not held back behind the notification")

	close(release)
	assert.Eventually(t, finished.Load, 2*time.Second, 5*time.Millisecond)
}

func TestPipe_OnceFiresOnce(t *testing.T) {
	renderer, host := newTestPipe(t)

	fired := make(chan struct{}, 4)
	renderer.Once(WindowClosedChannel(5), func(Message) { fired <- struct{}{} })
	after := collect(t, renderer, WindowClosedChannel(5))

	require.NoError(t, host.Send(WindowClosedChannel(5)))
	require.NoError(t, host.Send(WindowClosedChannel(5)))
	receive(t, after)
	receive(t, after)

	assert.Len(t, fired, 1)
}

func TestPipe_Unsubscribe(t *testing.T) {
	renderer, host := newTestPipe(t)

	calls := make(chan struct{}, 4)
	unsubscribe := renderer.On(ChannelVisibilityChangeNotify, func(Message) { calls <- struct{}{} })
	unsubscribe()
	sentinel := collect(t, renderer, ChannelVisibilityChangeNotify)

	require.NoError(t, host.Send(ChannelVisibilityChangeNotify, "hidden"))
	receive(t, sentinel)
	assert.Empty(t, calls)
}

func TestPipe_PanickingListenerDoesNotStopDispatch(t *testing.T) {
	renderer, host := newTestPipe(t)

	renderer.On(ChannelPostMessageNotify, func(Message) { panic("boom") })
	got := collect(t, renderer, ChannelPostMessageNotify)

	require.NoError(t, host.Send(ChannelPostMessageNotify, 1, "a", "https://a"))
	require.NoError(t, host.Send(ChannelPostMessageNotify, 1, "b", "https://a"))
	assert.Equal(t, "a", receive(t, got).Args.StringOr(1, ""))
	assert.Equal(t, "b", receive(t, got).Args.StringOr(1, ""))
}

func TestPipe_CloseUnblocksAndLeaksNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	renderer, host := Pipe(Options{Logger: zaptest.NewLogger(t)})

	started := make(chan struct{})
	host.Handle(ChannelWindowOpenRequest, func(ctx context.Context, args Args) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, err := renderer.SendSync(ctx, ChannelWindowOpenRequest, "about:blank")
		errCh <- err
	}()
	<-started

	// Close cannot finish while the handler is parked; cancel releases it.
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, renderer.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SendSync did not return after Close")
	}

	assert.ErrorIs(t, renderer.Send(ChannelWindowCloseRequest, 1), ErrClosed)
	_, err := host.SendSync(context.Background(), ChannelBrowserWindowAlert)
	assert.ErrorIs(t, err, ErrClosed)
	<-host.Done()
}

func TestPipe_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	renderer, host := Pipe(Options{Logger: zaptest.NewLogger(t), Metrics: metrics})
	defer renderer.Close()

	host.Handle(ChannelNavigationSyncRequest, func(context.Context, Args) (any, error) { return 1, nil })
	got := collect(t, renderer, WindowClosedChannel(42))

	require.NoError(t, host.Send(WindowClosedChannel(42)))
	receive(t, got)
	_, err := renderer.SendSync(context.Background(), ChannelNavigationSyncRequest, NavLength)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Messages.WithLabelValues("out", "event", "window-close-notify")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Messages.WithLabelValues("in", "event", "window-close-notify")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Messages.WithLabelValues("out", "request", ChannelNavigationSyncRequest)))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.RoundTrip))
}
