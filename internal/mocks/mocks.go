// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/guestwin/internal/config"
	"github.com/xkilldash9x/guestwin/internal/ipc"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Renderer() config.RendererConfig {
	args := m.Called()
	return args.Get(0).(config.RendererConfig)
}

func (m *MockConfig) Transport() config.TransportConfig {
	args := m.Called()
	return args.Get(0).(config.TransportConfig)
}

func (m *MockConfig) Host() config.HostConfig {
	args := m.Called()
	return args.Get(0).(config.HostConfig)
}

// --- Setters ---

func (m *MockConfig) SetRendererDocumentURL(u string) { m.Called(u) }
func (m *MockConfig) SetRendererHiddenPage(b bool)    { m.Called(b) }
func (m *MockConfig) SetRendererOpenerID(id int64)    { m.Called(id) }
func (m *MockConfig) SetTransportURL(u string)        { m.Called(u) }
func (m *MockConfig) SetHostListenAddr(a string)      { m.Called(a) }

// -- Transport Mock --

// MockTransport mocks ipc.Transport. Send and SendSync go through testify
// expectations; subscriptions are recorded so tests can Emit inbound
// notifications synchronously.
type MockTransport struct {
	mock.Mock

	mu        sync.Mutex
	listeners map[string][]*mockListener
}

type mockListener struct {
	fn   ipc.Listener
	once bool
}

var _ ipc.Transport = (*MockTransport)(nil)

// NewMockTransport returns a transport with no expectations set.
func NewMockTransport() *MockTransport {
	return &MockTransport{listeners: make(map[string][]*mockListener)}
}

func (m *MockTransport) Send(channel string, args ...any) error {
	callArgs := append([]any{channel}, args...)
	return m.Called(callArgs...).Error(0)
}

func (m *MockTransport) SendSync(ctx context.Context, channel string, args ...any) (any, error) {
	callArgs := append([]any{channel}, args...)
	ret := m.Called(callArgs...)
	return ret.Get(0), ret.Error(1)
}

func (m *MockTransport) On(channel string, fn ipc.Listener) func() {
	return m.subscribe(channel, fn, false)
}

func (m *MockTransport) Once(channel string, fn ipc.Listener) func() {
	return m.subscribe(channel, fn, true)
}

func (m *MockTransport) subscribe(channel string, fn ipc.Listener, once bool) func() {
	l := &mockListener{fn: fn, once: once}
	m.mu.Lock()
	if m.listeners == nil {
		m.listeners = make(map[string][]*mockListener)
	}
	m.listeners[channel] = append(m.listeners[channel], l)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners[channel] = removeListener(m.listeners[channel], l)
	}
}

// Emit delivers a notification to the current subscribers on the calling
// goroutine and reports how many received it.
func (m *MockTransport) Emit(channel string, args ...any) int {
	m.mu.Lock()
	subs := append([]*mockListener(nil), m.listeners[channel]...)
	for _, l := range subs {
		if l.once {
			m.listeners[channel] = removeListener(m.listeners[channel], l)
		}
	}
	m.mu.Unlock()

	for _, l := range subs {
		l.fn(ipc.Message{Channel: channel, Args: ipc.Args(args)})
	}
	return len(subs)
}

// Subscribers reports how many listeners are attached to channel.
func (m *MockTransport) Subscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[channel])
}

func removeListener(list []*mockListener, target *mockListener) []*mockListener {
	for i, l := range list {
		if l == target {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
