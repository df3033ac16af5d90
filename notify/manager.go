// Package notify pushes cache invalidation events to connected browsers
// over WebSocket so an open document reloads when its source changes.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type reloadMessage struct {
	Type      string    `json:"type"`
	Key       string    `json:"key,omitempty"`
	Path      string    `json:"path,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type Manager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    types.Logger
	upgrader  websocket.FastHTTPUpgrader
	state     atomic.Value
	writeWait time.Duration

	clientMu sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

func NewManager(ctx context.Context, logger types.Logger) *Manager {
	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:    managerCtx,
		cancel: cancel,
		logger: logger,
		upgrader: websocket.FastHTTPUpgrader{
			CheckOrigin: func(ctx *fasthttp.RequestCtx) bool { return true },
		},
		writeWait: 10 * time.Second,
		clients:   make(map[*websocket.Conn]struct{}),
	}

	manager.state.Store(StateStopped)

	return manager
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	m.setState(StateRunning)

	if m.logger != nil {
		m.logger.Info("Reload notifier started")
	}
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrNotifierClosed
	}

	defer func() {
		m.setState(StateStopped)
		m.cancel()
	}()

	m.clientMu.Lock()
	for conn := range m.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(m.writeWait))
		_ = conn.Close()
		delete(m.clients, conn)
	}
	m.clientMu.Unlock()

	if m.logger != nil {
		m.logger.Info("Reload notifier stopped")
	}
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

// Handler upgrades the connection and parks it until the client leaves.
func (m *Manager) Handler() types.FastHTTPHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !m.IsRunning() {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}

		err := m.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			m.register(conn)
			defer m.unregister(conn)

			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
		if err != nil && m.logger != nil {
			m.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		}
	}
}

// Broadcast fans one invalidation event out to every connected client.
// A client that cannot be written to is dropped.
func (m *Manager) Broadcast(event types.InvalidationEvent) {
	if !m.IsRunning() {
		return
	}

	message := reloadMessage{
		Type:      "reload",
		Key:       event.Key,
		Reason:    string(event.Reason),
		Timestamp: event.Timestamp,
	}
	if event.Entry != nil {
		message.Path = event.Entry.SourceFilePath
	}

	payload, err := utils.Marshal(message)
	if err != nil {
		if m.logger != nil {
			m.logger.Error("Failed to marshal reload message", zap.Error(err))
		}
		return
	}

	m.clientMu.Lock()
	defer m.clientMu.Unlock()

	for conn := range m.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(m.writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = conn.Close()
			delete(m.clients, conn)
			if m.logger != nil {
				m.logger.Debug("Dropped reload client", zap.Error(err))
			}
		}
	}
}

func (m *Manager) ClientCount() int {
	m.clientMu.Lock()
	defer m.clientMu.Unlock()
	return len(m.clients)
}

func (m *Manager) register(conn *websocket.Conn) {
	m.clientMu.Lock()
	m.clients[conn] = struct{}{}
	count := len(m.clients)
	m.clientMu.Unlock()

	if m.logger != nil {
		m.logger.Debug("Reload client connected", zap.Int("clients", count))
	}
}

func (m *Manager) unregister(conn *websocket.Conn) {
	m.clientMu.Lock()
	delete(m.clients, conn)
	count := len(m.clients)
	m.clientMu.Unlock()

	_ = conn.Close()

	if m.logger != nil {
		m.logger.Debug("Reload client disconnected", zap.Int("clients", count))
	}
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
