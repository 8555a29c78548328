// internal/host/server.go
package host

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/guestwin/internal/ipc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Query parameters a renderer passes when it connects to /ipc.
const (
	ParamURL    = "url"
	ParamOpener = "opener"
	ParamHidden = "hidden"
)

// Server exposes a Manager over HTTP: renderers connect to /ipc with a
// websocket, /healthz reports the table size and /metrics serves prometheus.
type Server struct {
	manager  *Manager
	connOpts ipc.ConnOptions
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   *mux.Router

	mu    sync.Mutex
	conns map[*ipc.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer builds the routes. gatherer may be nil to serve the default registry.
func NewServer(manager *Manager, connOpts ipc.ConnOptions, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		manager:  manager,
		connOpts: connOpts,
		gatherer: gatherer,
		logger:   logger.Named("server"),
		conns:    make(map[*ipc.Conn]struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ipc", s.handleIPC).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleIPC(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := AttachOptions{URL: q.Get(ParamURL), OpenerID: -1}
	if v := q.Get(ParamOpener); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid opener id", http.StatusBadRequest)
			return
		}
		opts.OpenerID = id
	}
	if v := q.Get(ParamHidden); v != "" {
		hidden, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid hidden flag", http.StatusBadRequest)
			return
		}
		opts.Hidden = hidden
	}

	// Handlers are installed before the first frame is dispatched.
	var id int64
	connOpts := s.connOpts
	connOpts.Setup = func(conn *ipc.Conn) error {
		var err error
		id, err = s.manager.Attach(conn, opts)
		return err
	}
	conn, err := ipc.Accept(w, r, connOpts)
	if err != nil {
		s.logger.Warn("Renderer connection failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-conn.Done()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	s.logger.Debug("Renderer connected", zap.Int64("window_id", id), zap.String("remote", r.RemoteAddr))
}

type health struct {
	Status  string `json:"status"`
	Windows int    `json:"windows"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health{Status: "ok", Windows: s.manager.Len()}); err != nil {
		s.logger.Warn("Failed to write health response", zap.Error(err))
	}
}

// CloseConnections closes every live renderer connection.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := make([]*ipc.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// ListenAndServe serves on addr until ctx ends, then shuts down, closing
// renderer connections and waiting for the manager to detach them.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Host listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.CloseConnections()
		s.wg.Wait()
		s.manager.Wait()
		return err
	})
	return g.Wait()
}
