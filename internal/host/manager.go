// Package host is a reference implementation of the browser side of the
// window protocol. It keeps an in-memory window table, answers every
// request a renderer can make and pushes close, message and visibility
// notifications back.
package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/config"
	"github.com/xkilldash9x/guestwin/internal/ipc"
	"github.com/xkilldash9x/guestwin/internal/weburl"
)

var (
	// ErrTooManyWindows is returned by Attach when the table is full.
	ErrTooManyWindows = errors.New("host: window limit reached")
	// ErrNoWindow is returned for operations on an id the host does not know.
	ErrNoWindow = errors.New("host: no such window")
)

// Visibility states pushed to renderers.
const (
	Visible = "visible"
	Hidden  = "hidden"
)

// Message is a relayed message stored for a window that has no renderer.
type Message struct {
	SourceID int64
	Data     any
	Origin   string
}

// WindowInfo is a snapshot of one window.
type WindowInfo struct {
	ID                 int64
	Name               string
	OpenerID           int64
	URL                string
	History            []string
	Index              int
	Visibility         string
	Focused            bool
	Prints             int
	Scripts            [][]any
	Options            map[string]any
	AdditionalFeatures []string
	Inbox              []Message
	Attached           bool
}

type window struct {
	WindowInfo
	endpoint ipc.Endpoint
}

func (w *window) url() string {
	return w.History[w.Index]
}

func (w *window) navigate(u string) {
	w.History = append(w.History[:w.Index+1], u)
	w.Index = len(w.History) - 1
	w.URL = u
}

func (w *window) snapshot() WindowInfo {
	info := w.WindowInfo
	info.History = append([]string(nil), w.History...)
	info.Scripts = append([][]any(nil), w.Scripts...)
	info.Inbox = append([]Message(nil), w.Inbox...)
	info.AdditionalFeatures = append([]string(nil), w.AdditionalFeatures...)
	info.Attached = w.endpoint != nil
	return info
}

// AttachOptions describes the page a renderer is showing.
type AttachOptions struct {
	URL      string
	OpenerID int64
	Hidden   bool
}

// Manager owns the window table. It is safe for concurrent use; every
// attached endpoint calls into it from its own dispatch goroutine.
type Manager struct {
	cfg     config.HostConfig
	logger  *zap.Logger
	metrics *Metrics

	mu        sync.Mutex
	nextID    int64
	windows   map[int64]*window
	endpoints map[ipc.Endpoint]int64
	wg        sync.WaitGroup
}

// NewManager creates an empty window table.
func NewManager(cfg config.HostConfig, metrics *Metrics, logger *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger.Named("host"),
		metrics:   metrics,
		nextID:    cfg.FirstWindowID,
		windows:   make(map[int64]*window),
		endpoints: make(map[ipc.Endpoint]int64),
	}, nil
}

// Attach registers a window backed by a live renderer on ep and returns its
// id. The window closes when ep goes away.
func (m *Manager) Attach(ep ipc.Endpoint, opts AttachOptions) (int64, error) {
	m.mu.Lock()
	if len(m.windows) >= m.cfg.MaxWindows {
		m.mu.Unlock()
		return 0, ErrTooManyWindows
	}
	u := opts.URL
	if u == "" {
		u = m.cfg.BlankURL
	}
	w := m.newWindowLocked(u, "", opts.OpenerID)
	if opts.Hidden {
		w.Visibility = Hidden
	}
	w.endpoint = ep
	m.endpoints[ep] = w.ID
	id := w.ID
	m.mu.Unlock()

	m.install(ep, id)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-ep.Done()
		m.detach(ep)
	}()

	m.logger.Info("Renderer attached", zap.Int64("window_id", id), zap.String("url", u))
	return id, nil
}

// Wait blocks until every attached endpoint has gone away.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) detach(ep ipc.Endpoint) {
	m.mu.Lock()
	id, ok := m.endpoints[ep]
	delete(m.endpoints, ep)
	if w, exists := m.windows[id]; exists && w.endpoint == ep {
		w.endpoint = nil
	}
	m.mu.Unlock()
	if ok {
		m.logger.Info("Renderer detached", zap.Int64("window_id", id))
		_ = m.CloseWindow(id)
	}
}

// newWindowLocked allocates the next id. m.mu must be held.
func (m *Manager) newWindowLocked(u, name string, opener int64) *window {
	id := m.nextID
	m.nextID++
	w := &window{WindowInfo: WindowInfo{
		ID:         id,
		Name:       name,
		OpenerID:   opener,
		URL:        u,
		History:    []string{u},
		Visibility: Visible,
	}}
	m.windows[id] = w
	m.metrics.setWindows(len(m.windows))
	return w
}

// Open creates a window with no renderer behind it, as a window-open-request
// does. It returns false when the table is full.
func (m *Manager) Open(openerID int64, u, name string, options map[string]any, additional []string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.windows) >= m.cfg.MaxWindows {
		m.metrics.opened(false)
		return 0, false
	}
	if u == "" {
		u = m.cfg.BlankURL
	}
	w := m.newWindowLocked(u, name, openerID)
	w.Options = options
	w.AdditionalFeatures = additional
	m.metrics.opened(true)
	return w.ID, true
}

// CloseWindow removes id and tells every attached renderer.
func (m *Manager) CloseWindow(id int64) error {
	m.mu.Lock()
	if _, ok := m.windows[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoWindow, id)
	}
	delete(m.windows, id)
	m.metrics.setWindows(len(m.windows))
	peers := m.peersLocked()
	m.mu.Unlock()

	channel := ipc.WindowClosedChannel(id)
	for _, ep := range peers {
		if err := ep.Send(channel); err != nil && !errors.Is(err, ipc.ErrClosed) {
			m.logger.Warn("Failed to announce close", zap.Int64("window_id", id), zap.Error(err))
		}
	}
	m.logger.Info("Window closed", zap.Int64("window_id", id))
	return nil
}

// SetVisibility records state for id and pushes it to the window's renderer.
func (m *Manager) SetVisibility(id int64, state string) error {
	m.mu.Lock()
	w, ok := m.windows[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoWindow, id)
	}
	w.Visibility = state
	ep := w.endpoint
	m.mu.Unlock()

	if ep == nil {
		return nil
	}
	return ep.Send(ipc.ChannelVisibilityChangeNotify, state)
}

// PostMessage relays message from the window from to the window to. It is
// dropped when targetOrigin does not match the target's current document.
// Windows without a renderer keep the message in their inbox.
func (m *Manager) PostMessage(from, to int64, message any, targetOrigin, senderOrigin string) {
	m.mu.Lock()
	w, ok := m.windows[to]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("Dropping message for unknown window", zap.Int64("window_id", to))
		return
	}
	if !weburl.SameOrigin(targetOrigin, w.url()) {
		m.mu.Unlock()
		m.logger.Debug("Dropping message, target origin mismatch",
			zap.Int64("window_id", to),
			zap.String("target_origin", targetOrigin),
			zap.String("url", w.url()),
		)
		return
	}
	ep := w.endpoint
	if ep == nil {
		w.Inbox = append(w.Inbox, Message{SourceID: from, Data: message, Origin: senderOrigin})
	}
	m.mu.Unlock()

	if ep != nil {
		if err := ep.Send(ipc.ChannelPostMessageNotify, from, message, senderOrigin); err != nil {
			m.logger.Warn("Failed to relay message", zap.Int64("window_id", to), zap.Error(err))
		}
	}
}

// Window returns a snapshot of id.
func (m *Manager) Window(id int64) (WindowInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return WindowInfo{}, false
	}
	return w.snapshot(), true
}

// Windows returns snapshots of every open window ordered by id.
func (m *Manager) Windows() []WindowInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WindowInfo, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many windows are open.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *Manager) peersLocked() []ipc.Endpoint {
	peers := make([]ipc.Endpoint, 0, len(m.endpoints))
	for ep := range m.endpoints {
		peers = append(peers, ep)
	}
	return peers
}

// withWindow runs fn on id under the lock.
func (m *Manager) withWindow(id int64, fn func(w *window) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoWindow, id)
	}
	return fn(w)
}
