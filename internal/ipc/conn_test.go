// internal/ipc/conn_test.go
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// connPair starts an httptest server that accepts one websocket and returns
// both ends: the dialed renderer side and the accepted host side.
func connPair(t *testing.T, opts ConnOptions) (*Conn, *Conn, func()) {
	t.Helper()
	accepted := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Accept(w, r, opts)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		accepted <- c
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url, opts)
	require.NoError(t, err)

	var server *Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	cleanup := func() {
		_ = client.Close()
		_ = server.Close()
		srv.Close()
	}
	return client, server, cleanup
}

func TestConn_RoundTripAndNotifications(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, server, cleanup := connPair(t, ConnOptions{
		Options:      Options{Logger: zaptest.NewLogger(t)},
		WriteTimeout: time.Second,
	})
	defer cleanup()

	server.Handle(ChannelWindowOpenRequest, func(ctx context.Context, args Args) (any, error) {
		url, err := args.String(0)
		if err != nil {
			return nil, err
		}
		if url == "https://refused.example/" {
			return nil, nil
		}
		return 12, nil
	})

	id, err := client.SendSync(context.Background(), ChannelWindowOpenRequest, "https://a.example/", "", DispositionNewWindow, map[string]any{}, []string{})
	require.NoError(t, err)
	assert.Equal(t, json.Number("12"), id)

	refused, err := client.SendSync(context.Background(), ChannelWindowOpenRequest, "https://refused.example/")
	require.NoError(t, err)
	assert.Nil(t, refused)

	got := collect(t, client, ChannelPostMessageNotify)
	require.NoError(t, server.Send(ChannelPostMessageNotify, 12, map[string]any{"hello": "world"}, "https://a.example"))
	msg := receive(t, got)
	source, err := msg.Args.Int64(0)
	require.NoError(t, err)
	assert.Equal(t, int64(12), source)
	data, err := msg.Args.Map(1)
	require.NoError(t, err)
	assert.Equal(t, "world", data["hello"])
}

func TestConn_RemoteError(t *testing.T) {
	client, _, cleanup := connPair(t, ConnOptions{Options: Options{Logger: zaptest.NewLogger(t)}})
	defer cleanup()

	_, err := client.SendSync(context.Background(), ChannelNavigationSyncRequest, NavLength)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "no handler registered")
}

func TestConn_ListenerMayBlockOnRoundTrip(t *testing.T) {
	client, server, cleanup := connPair(t, ConnOptions{Options: Options{Logger: zaptest.NewLogger(t)}})
	defer cleanup()

	server.Handle(ChannelContentsMethodSyncRequest, func(context.Context, Args) (any, error) {
		return "https://b.example/", nil
	})

	result := make(chan any, 1)
	client.On(ChannelPostMessageNotify, func(msg Message) {
		// A round-trip issued from the dispatch goroutine must still see its reply.
		v, err := client.SendSync(context.Background(), ChannelContentsMethodSyncRequest, 3, MethodGetURL)
		if err != nil {
			result <- err
			return
		}
		result <- v
	})

	require.NoError(t, server.Send(ChannelPostMessageNotify, 3, "ping", "https://b.example"))
	select {
	case v := <-result:
		assert.Equal(t, "https://b.example/", v)
	case <-time.After(2 * time.Second):
		t.Fatal("round-trip from listener deadlocked")
	}
}

func TestConn_PeerCloseFailsPending(t *testing.T) {
	client, server, cleanup := connPair(t, ConnOptions{Options: Options{Logger: zaptest.NewLogger(t)}})
	defer cleanup()

	started := make(chan struct{})
	server.Handle(ChannelBrowserWindowAlert, func(ctx context.Context, args Args) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := client.SendSync(context.Background(), ChannelBrowserWindowAlert, "hi", "")
		errCh <- err
	}()
	<-started
	go func() { _ = server.Close() }()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending round-trip survived peer close")
	}
	<-client.Done()
	assert.ErrorIs(t, client.Send(ChannelWindowCloseRequest, 1), ErrClosed)
}

func TestConn_SendRateLimit(t *testing.T) {
	client, server, cleanup := connPair(t, ConnOptions{
		Options:   Options{Logger: zaptest.NewLogger(t)},
		SendRate:  1000,
		SendBurst: 1,
	})
	defer cleanup()

	got := collect(t, server, ChannelWindowMethodRequest)
	for i := 0; i < 5; i++ {
		require.NoError(t, client.Send(ChannelWindowMethodRequest, i, MethodFocus))
	}
	for i := 0; i < 5; i++ {
		msg := receive(t, got)
		id, err := msg.Args.Int64(0)
		require.NoError(t, err)
		assert.Equal(t, int64(i), id)
	}
}

func TestConn_SetupRunsBeforeDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger := zaptest.NewLogger(t)

	requested := make(chan struct{})
	accepted := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Accept(w, r, ConnOptions{
			Options: Options{Logger: logger},
			Setup: func(c *Conn) error {
				// Let the first request reach the inbox before any handler exists.
				select {
				case <-requested:
				case <-time.After(2 * time.Second):
				}
				time.Sleep(20 * time.Millisecond)
				c.Handle(ChannelNavigationSyncRequest, func(context.Context, Args) (any, error) {
					return 5, nil
				})
				return nil
			},
		})
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		accepted <- c
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url, ConnOptions{Options: Options{Logger: logger}})
	require.NoError(t, err)
	defer client.Close()

	result := make(chan error, 1)
	go func() {
		res, err := client.SendSync(context.Background(), ChannelNavigationSyncRequest, NavLength)
		if err == nil && res != json.Number("5") {
			err = errors.New("unexpected result")
		}
		result <- err
	}()
	close(requested)

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("round-trip never completed")
	}

	server := <-accepted
	defer server.Close()
}

func TestConn_SetupErrorClosesConnection(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger := zaptest.NewLogger(t)

	errRejected := errors.New("window limit reached")
	acceptErr := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := Accept(w, r, ConnOptions{
			Options: Options{Logger: logger},
			Setup:   func(*Conn) error { return errRejected },
		})
		acceptErr <- err
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url, ConnOptions{Options: Options{Logger: logger}})
	require.NoError(t, err)

	assert.ErrorIs(t, <-acceptErr, errRejected)
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client was not disconnected")
	}
	_ = client.Wait()
}

func TestConn_DuplicateReplyDoesNotStallReader(t *testing.T) {
	client, _, cleanup := connPair(t, ConnOptions{Options: Options{Logger: zaptest.NewLogger(t)}})
	defer cleanup()

	reply := make(chan *frame, 1)
	client.pendingMu.Lock()
	client.pending["dup"] = reply
	client.pendingMu.Unlock()

	resolved := make(chan struct{})
	go func() {
		defer close(resolved)
		client.resolve(&frame{Kind: kindReply, ID: "dup", Result: "first"})
		client.resolve(&frame{Kind: kindReply, ID: "dup", Result: "second"})
	}()

	select {
	case <-resolved:
	case <-time.After(2 * time.Second):
		t.Fatal("second reply blocked the reader")
	}
	assert.Equal(t, "first", (<-reply).Result)
}
