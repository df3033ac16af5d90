// Package watcher bridges filesystem notifications into file change events
// consumed by the cache invalidation coordinator and the reload notifier.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Manager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   types.Logger
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	state    atomic.Value

	handlerMu sync.RWMutex
	handlers  []types.FileChangeHandler

	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

func NewManager(ctx context.Context, logger types.Logger, root string, config *types.WatcherConfig) (*Manager, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, types.WrapError(err, "failed to resolve watch root")
	}

	info, err := os.Stat(absolute)
	if err != nil || !info.IsDir() {
		return nil, types.Errorf(types.ErrWatcherRootInvalid, "root: %s", root)
	}

	debounce := 200 * time.Millisecond
	if config != nil && config.Debounce > 0 {
		debounce = config.Debounce
	}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:      managerCtx,
		cancel:   cancel,
		logger:   logger,
		root:     absolute,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.setState(StateStopped)
		return types.WrapError(types.ErrWatcherStartFailed, err.Error())
	}
	m.watcher = watcher

	if err := m.watchRecursive(m.root); err != nil {
		_ = watcher.Close()
		m.watcher = nil
		m.setState(StateStopped)
		return err
	}

	go m.watchLoop()

	m.setState(StateRunning)

	if m.logger != nil {
		m.logger.Info("File watcher started",
			zap.String("root", m.root),
			zap.Duration("debounce", m.debounce))
	}

	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
		m.cancel()
	}()

	m.timerMu.Lock()
	for path, timer := range m.timers {
		timer.Stop()
		delete(m.timers, path)
	}
	m.timerMu.Unlock()

	if m.watcher != nil {
		err := m.watcher.Close()
		m.watcher = nil
		if err != nil {
			return types.WrapError(err, "failed to close watcher")
		}
	}

	if m.logger != nil {
		m.logger.Info("File watcher stopped", zap.String("root", m.root))
	}

	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) Subscribe(handler types.FileChangeHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handlers = append(m.handlers, handler)
}

func (m *Manager) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return types.WrapError(err, "failed to walk watch root")
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		if err := m.watcher.Add(path); err != nil {
			return types.WrapError(err, "failed to watch directory: "+path)
		}
		return nil
	})
}

func (m *Manager) watchLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleRawEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			if m.logger != nil {
				m.logger.Error("File watcher error", zap.Error(err))
			}
		}
	}
}

// handleRawEvent schedules the debounced dispatch. A burst of writes to one
// file collapses into a single change notification.
func (m *Manager) handleRawEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = m.watchRecursive(event.Name)
		}
	}

	kind, ok := m.classify(event)
	if !ok {
		return
	}

	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if timer, exists := m.timers[event.Name]; exists {
		timer.Stop()
	}

	path := event.Name
	m.timers[path] = time.AfterFunc(m.debounce, func() {
		m.timerMu.Lock()
		delete(m.timers, path)
		m.timerMu.Unlock()
		m.dispatch(path, kind)
	})
}

func (m *Manager) classify(event fsnotify.Event) (types.FileChangeKind, bool) {
	switch {
	case event.Has(fsnotify.Create):
		return types.FileAdded, true
	case event.Has(fsnotify.Write):
		return types.FileModified, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return types.FileRemoved, true
	default:
		return "", false
	}
}

func (m *Manager) dispatch(path string, kind types.FileChangeKind) {
	change := types.FileChange{
		Path: path,
		Kind: kind,
	}

	if kind != types.FileRemoved {
		if info, err := os.Stat(path); err == nil {
			change.NewModifiedAt = info.ModTime()
		} else if kind == types.FileModified {
			// The file vanished between the event and the stat.
			change.Kind = types.FileRemoved
		}
	}

	if m.logger != nil {
		m.logger.Debug("File change detected",
			zap.String("path", path),
			zap.String("kind", string(change.Kind)))
	}

	m.handlerMu.RLock()
	handlers := make([]types.FileChangeHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.handlerMu.RUnlock()

	for _, handler := range handlers {
		handler(change)
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
