package middleware

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-docs/types"
)

const MaxMiddlewares = 64

type Manager struct {
	ctx                context.Context
	config             types.ConfigManager
	logger             types.Logger
	metrics            types.MetricsManager
	orderedMiddlewares []types.MiddlewareEntry
	nameToIndex        map[string]int
	defaultEnabledMask uint64
	middlewareMap      map[string]*types.MiddlewareEntry
	compiledChains     map[uint64]*CompiledChain
	chainsMu           sync.RWMutex
	mu                 sync.Mutex
	initialized        int32
}

type CompiledChain struct {
	mask    uint64
	handler func(*fasthttp.RequestCtx, func(*fasthttp.RequestCtx), *types.RouteConfig)
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	return &Manager{
		ctx:            ctx,
		config:         config,
		logger:         logger,
		metrics:        metrics,
		nameToIndex:    make(map[string]int),
		middlewareMap:  make(map[string]*types.MiddlewareEntry),
		compiledChains: make(map[uint64]*CompiledChain),
	}, nil
}

func (m *Manager) RegisterMiddlewares() error {
	config := m.config.GetConfig()
	if config.Middlewares == nil || !config.Middlewares.Enabled {
		return m.finalizeConfiguration()
	}

	if config.Middlewares.Recovery != nil && config.Middlewares.Recovery.Enabled {
		if err := m.Register(NewRecoveryMiddleware(m.config, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	if config.Middlewares.Logging != nil && config.Middlewares.Logging.Enabled {
		if err := m.Register(NewLoggingMiddleware(m.config, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	if config.Middlewares.CORS != nil && config.Middlewares.CORS.Enabled {
		if err := m.Register(NewCORSMiddleware(m.config, m.logger)); err != nil {
			return err
		}
	}

	if config.Middlewares.Metadata != nil && config.Middlewares.Metadata.Enabled {
		if err := m.Register(NewMetadataMiddleware(m.config, m.logger)); err != nil {
			return err
		}
	}

	if config.Middlewares.Compression != nil && config.Middlewares.Compression.Enabled {
		if err := m.Register(NewCompressionMiddleware(m.config, m.logger)); err != nil {
			return err
		}
	}

	return m.finalizeConfiguration()
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.Errorf(types.ErrInvalidParameter, "middleware is nil")
	}

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.Errorf(types.ErrInvalidState, "cannot register middleware after finalization")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.middlewareMap) >= MaxMiddlewares {
		return types.Errorf(types.ErrInvalidState, "maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	name := middleware.Name()
	m.middlewareMap[name] = &types.MiddlewareEntry{
		Name:       name,
		Middleware: middleware,
		Weight:     middleware.Weight(),
	}

	if m.logger != nil {
		m.logger.Info("Middleware registered: " + name)
	}
	return nil
}

func (m *Manager) finalizeConfiguration() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.Errorf(types.ErrInvalidState, "middleware configuration already finalized")
	}

	weights := make(map[int]string, len(m.middlewareMap))
	for name, entry := range m.middlewareMap {
		if existing, exists := weights[entry.Weight]; exists {
			return types.Errorf(types.ErrInvalidParameter,
				"duplicate weight %d for middlewares %q and %q", entry.Weight, existing, name)
		}
		weights[entry.Weight] = name
	}

	m.orderedMiddlewares = make([]types.MiddlewareEntry, 0, len(m.middlewareMap))
	for _, entry := range m.middlewareMap {
		m.orderedMiddlewares = append(m.orderedMiddlewares, *entry)
	}

	sort.Slice(m.orderedMiddlewares, func(i, j int) bool {
		return m.orderedMiddlewares[i].Weight < m.orderedMiddlewares[j].Weight
	})

	m.nameToIndex = make(map[string]int, len(m.orderedMiddlewares))
	m.defaultEnabledMask = 0
	for i, entry := range m.orderedMiddlewares {
		m.nameToIndex[entry.Name] = i
		m.defaultEnabledMask |= 1 << uint(i)
	}

	m.middlewareMap = nil
	atomic.StoreInt32(&m.initialized, 1)

	return nil
}

func (m *Manager) Execute(ctx *fasthttp.RequestCtx, handler func(*fasthttp.RequestCtx), config *types.RouteConfig) {
	if atomic.LoadInt32(&m.initialized) == 0 {
		handler(ctx)
		return
	}

	mask := m.routeMask(config)
	if mask == 0 {
		handler(ctx)
		return
	}

	if chain := m.getCompiledChain(mask); chain != nil {
		chain.handler(ctx, handler, config)
		return
	}

	m.executeAndCompile(ctx, handler, mask, config)
}

func (m *Manager) routeMask(config *types.RouteConfig) uint64 {
	if config == nil || len(config.DisabledMiddlewares) == 0 {
		return m.defaultEnabledMask
	}

	mask := m.defaultEnabledMask
	for _, name := range config.DisabledMiddlewares {
		if index, exists := m.nameToIndex[name]; exists {
			mask &^= 1 << uint(index)
		}
	}

	return mask
}

func (m *Manager) getCompiledChain(mask uint64) *CompiledChain {
	m.chainsMu.RLock()
	chain := m.compiledChains[mask]
	m.chainsMu.RUnlock()
	return chain
}

func (m *Manager) executeAndCompile(ctx *fasthttp.RequestCtx, handler func(*fasthttp.RequestCtx), mask uint64, config *types.RouteConfig) {
	active := make([]types.Middleware, 0, len(m.orderedMiddlewares))
	for i, entry := range m.orderedMiddlewares {
		if mask&(1<<uint(i)) != 0 {
			active = append(active, entry.Middleware)
		}
	}

	compiled := &CompiledChain{
		mask:    mask,
		handler: compileChain(active),
	}

	m.chainsMu.Lock()
	m.compiledChains[mask] = compiled
	m.chainsMu.Unlock()

	compiled.handler(ctx, handler, config)
}

func compileChain(middlewares []types.Middleware) func(*fasthttp.RequestCtx, func(*fasthttp.RequestCtx), *types.RouteConfig) {
	if len(middlewares) == 0 {
		return func(ctx *fasthttp.RequestCtx, handler func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
			handler(ctx)
		}
	}

	return func(ctx *fasthttp.RequestCtx, handler func(*fasthttp.RequestCtx), config *types.RouteConfig) {
		var index int

		var next func(*fasthttp.RequestCtx)
		next = func(ctx *fasthttp.RequestCtx) {
			if index >= len(middlewares) {
				handler(ctx)
				return
			}

			mw := middlewares[index]
			index++
			mw.Handle(ctx, next, config)
		}

		next(ctx)
	}
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orderedMiddlewares = nil
	m.nameToIndex = make(map[string]int)
	m.defaultEnabledMask = 0
	m.middlewareMap = make(map[string]*types.MiddlewareEntry)

	m.chainsMu.Lock()
	m.compiledChains = make(map[uint64]*CompiledChain)
	m.chainsMu.Unlock()

	atomic.StoreInt32(&m.initialized, 0)

	if m.logger != nil {
		m.logger.Info("Middleware manager cleared")
	}
}
