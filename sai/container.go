package sai

import (
	"sync/atomic"

	"github.com/saiset-co/sai-docs/render"
	"github.com/saiset-co/sai-docs/types"
)

type Container struct {
	Config      atomic.Pointer[types.ConfigManager]
	Logger      atomic.Pointer[types.LoggerManager]
	Router      atomic.Pointer[types.HTTPRouter]
	Cache       atomic.Pointer[types.RenderCache]
	Renderer    atomic.Pointer[render.MarkdownRenderer]
	HTTPServer  atomic.Pointer[types.HTTPServer]
	Watcher     atomic.Pointer[types.WatcherManager]
	Notifier    atomic.Pointer[types.ReloadNotifier]
	Cron        atomic.Pointer[types.CronManager]
	Metrics     atomic.Pointer[types.MetricsManager]
	Middlewares atomic.Pointer[types.MiddlewareManager]
	Health      atomic.Pointer[types.HealthManager]
}

var globalContainer *Container

func InitContainer() *Container {
	return &Container{}
}

func SetContainer(container *Container) {
	globalContainer = container
}

func (c *Container) SetConfig(m types.ConfigManager)          { c.Config.Store(&m) }
func (c *Container) SetLogger(m types.LoggerManager)          { c.Logger.Store(&m) }
func (c *Container) SetRouter(m types.HTTPRouter)             { c.Router.Store(&m) }
func (c *Container) SetCache(m types.RenderCache)             { c.Cache.Store(&m) }
func (c *Container) SetRenderer(r *render.MarkdownRenderer)   { c.Renderer.Store(r) }
func (c *Container) SetHTTPServer(m types.HTTPServer)         { c.HTTPServer.Store(&m) }
func (c *Container) SetWatcher(m types.WatcherManager)        { c.Watcher.Store(&m) }
func (c *Container) SetNotifier(m types.ReloadNotifier)       { c.Notifier.Store(&m) }
func (c *Container) SetCron(m types.CronManager)              { c.Cron.Store(&m) }
func (c *Container) SetMetrics(m types.MetricsManager)        { c.Metrics.Store(&m) }
func (c *Container) SetMiddlewares(m types.MiddlewareManager) { c.Middlewares.Store(&m) }
func (c *Container) SetHealth(m types.HealthManager)          { c.Health.Store(&m) }

func Config() types.ConfigManager {
	if ptr := globalContainer.Config.Load(); ptr != nil {
		return *ptr
	}
	panic("ConfigManager not initialized")
}

func Logger() types.LoggerManager {
	if ptr := globalContainer.Logger.Load(); ptr != nil {
		return *ptr
	}
	panic("Logger not initialized")
}

func Router() types.HTTPRouter {
	if ptr := globalContainer.Router.Load(); ptr != nil {
		return *ptr
	}
	panic("Router not initialized")
}

func Cache() types.RenderCache {
	if ptr := globalContainer.Cache.Load(); ptr != nil {
		return *ptr
	}
	panic("RenderCache not initialized")
}

func Renderer() *render.MarkdownRenderer {
	if r := globalContainer.Renderer.Load(); r != nil {
		return r
	}
	panic("Renderer not initialized")
}

func Watcher() types.WatcherManager {
	if ptr := globalContainer.Watcher.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func Notifier() types.ReloadNotifier {
	if ptr := globalContainer.Notifier.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func Cron() types.CronManager {
	if ptr := globalContainer.Cron.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func Metrics() types.MetricsManager {
	if ptr := globalContainer.Metrics.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func Health() types.HealthManager {
	if ptr := globalContainer.Health.Load(); ptr != nil {
		return *ptr
	}
	return nil
}
