// internal/host/server_test.go
package host

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/guestwin/internal/config"
	"github.com/xkilldash9x/guestwin/internal/ipc"
	"github.com/xkilldash9x/guestwin/internal/renderer"
)

func newTestServer(t *testing.T) (*Server, *Manager, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	logger := zaptest.NewLogger(t)
	m, err := NewManager(testHostConfig(), NewMetrics(reg), logger)
	require.NoError(t, err)
	metrics := ipc.NewMetrics(reg)
	s := NewServer(m, ipc.ConnOptions{
		Options:      ipc.Options{Logger: logger, Metrics: metrics},
		WriteTimeout: time.Second,
	}, reg, logger)
	return s, m, reg
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","windows":0}`, string(body))

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "guestwin_host_windows 0")

	resp, err = ts.Client().Post(ts.URL+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_BadAttachParameters(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/ipc?opener=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_RendererOverWebsocket(t *testing.T) {
	s, m, _ := newTestServer(t)
	logger := zaptest.NewLogger(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, stop := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	doc := "https://a.example/index.html"
	q := url.Values{ParamURL: {doc}, ParamHidden: {"true"}}
	wsURL := "ws://" + ln.Addr().String() + "/ipc?" + q.Encode()

	conn, err := ipc.Dial(ctx, wsURL, ipc.ConnOptions{Options: ipc.Options{Logger: logger}})
	require.NoError(t, err)

	r, err := renderer.New(conn, config.RendererConfig{
		DocumentURL:      doc,
		HiddenPage:       true,
		OpenerID:         -1,
		RoundTripTimeout: 2 * time.Second,
	}, logger)
	require.NoError(t, err)
	defer r.Close()

	w, err := r.Open(ctx, "child.html", "", "")
	require.NoError(t, err)
	require.NotNil(t, w)
	loc, err := w.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/child.html", loc)

	windows := m.Windows()
	require.Len(t, windows, 2)
	assert.True(t, windows[0].Attached)
	assert.Equal(t, Hidden, windows[0].Visibility)

	require.NoError(t, m.SetVisibility(windows[0].ID, Visible))
	assert.Eventually(t, func() bool { return !r.Visibility().Hidden() }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Close())
	assert.Eventually(t, w.Closed, 2*time.Second, 5*time.Millisecond)

	stop()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	<-conn.Done()
	_ = conn.Wait()
	assert.Zero(t, m.Len())
}

func TestServer_RendererRejectedAtLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := zaptest.NewLogger(t)
	cfg := testHostConfig()
	cfg.MaxWindows = 1
	m, err := NewManager(cfg, NewMetrics(reg), logger)
	require.NoError(t, err)
	s := NewServer(m, ipc.ConnOptions{Options: ipc.Options{Logger: logger}}, reg, logger)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	wsURL := "ws" + ts.URL[len("http"):] + "/ipc"
	ctx := context.Background()

	first, err := ipc.Dial(ctx, wsURL, ipc.ConnOptions{Options: ipc.Options{Logger: logger}})
	require.NoError(t, err)

	// The first window answers its very first request.
	r, err := renderer.New(first, config.RendererConfig{
		DocumentURL:      "https://a.example/",
		OpenerID:         -1,
		RoundTripTimeout: 2 * time.Second,
	}, logger)
	require.NoError(t, err)
	defer r.Close()
	n, err := r.History().Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second, err := ipc.Dial(ctx, wsURL, ipc.ConnOptions{Options: ipc.Options{Logger: logger}})
	require.NoError(t, err)
	select {
	case <-second.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("rejected renderer was not disconnected")
	}
	_ = second.Wait()
	assert.Equal(t, 1, m.Len())

	require.NoError(t, first.Close())
	m.Wait()
	assert.Zero(t, m.Len())
}
