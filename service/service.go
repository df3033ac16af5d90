package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-docs/cache"
	"github.com/saiset-co/sai-docs/config"
	"github.com/saiset-co/sai-docs/cron"
	"github.com/saiset-co/sai-docs/health"
	"github.com/saiset-co/sai-docs/logger"
	"github.com/saiset-co/sai-docs/metrics"
	"github.com/saiset-co/sai-docs/middleware"
	"github.com/saiset-co/sai-docs/notify"
	"github.com/saiset-co/sai-docs/render"
	"github.com/saiset-co/sai-docs/sai"
	"github.com/saiset-co/sai-docs/server"
	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/watcher"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *sai.Container
}

// Option tweaks the loaded configuration before any component reads it.
// The CLI uses it to override the docs root and listen address.
type Option func(config *types.ServiceConfig)

func WithDocsRoot(root string) Option {
	return func(config *types.ServiceConfig) {
		if root != "" {
			config.Docs.Root = root
		}
	}
}

func WithListenAddr(host string, port int) Option {
	return func(config *types.ServiceConfig) {
		if host != "" {
			config.Server.HTTP.Host = host
		}
		if port > 0 {
			config.Server.HTTP.Port = port
		}
	}
}

func NewService(ctx context.Context, configPath string, opts ...Option) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "config file does not exist")
	}

	serviceCtx, cancel := context.WithCancel(ctx)
	container := sai.InitContainer()

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}

	service.state.Store(StateStopped)

	if err := registerProviders(container, serviceCtx, configPath, opts); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	sai.SetContainer(container)
	return service, nil
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		sai.Logger().Warn("Service is already running")
		return types.ErrServiceIsRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				sai.Logger().Error("Service run panic", zap.String("stack", string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	sai.Logger().Info("Starting service")

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	sai.Logger().Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		sai.Logger().Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	sai.Logger().Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		sai.Logger().Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	sai.Logger().Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) startComponents(ctx context.Context) error {
	_config := sai.Config().GetConfig()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if ptr := s.container.Logger.Load(); ptr != nil {
			if err := (*ptr).Start(); err != nil {
				return types.WrapError(err, "failed to start logger")
			}
		}
	}

	if _config.Health != nil && _config.Health.Enabled {
		if ptr := s.container.Health.Load(); ptr != nil {
			if err := (*ptr).Start(); err != nil {
				sai.Logger().Error("Failed to start health manager", zap.Error(err))
			}
		}
	}

	if _config.Middlewares != nil && _config.Middlewares.Enabled {
		if ptr := s.container.Middlewares.Load(); ptr != nil {
			if err := (*ptr).RegisterMiddlewares(); err != nil {
				return types.WrapError(err, "failed to register middlewares")
			}
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if _config.Metrics != nil && _config.Metrics.Enabled {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if ptr := s.container.Metrics.Load(); ptr != nil {
					if err := (*ptr).Start(); err != nil {
						sai.Logger().Error("Failed to start metrics manager", zap.Error(err))
					}
				}
				return nil
			}
		})
	}

	if _config.Watcher != nil && _config.Watcher.Enabled {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if ptr := s.container.Watcher.Load(); ptr != nil {
					if err := (*ptr).Start(); err != nil {
						sai.Logger().Error("Failed to start watcher manager", zap.Error(err))
					}
				}
				return nil
			}
		})
	}

	if _config.Notify != nil && _config.Notify.Enabled {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if ptr := s.container.Notifier.Load(); ptr != nil {
					if err := (*ptr).Start(); err != nil {
						sai.Logger().Error("Failed to start reload notifier", zap.Error(err))
					}
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.Errorf(types.ErrServerStartFailed, "component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	s.wireComponents()
	s.registerHandlers()

	if ptr := s.container.HTTPServer.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start HTTP server")
		}
	}

	if _config.Cron != nil && _config.Cron.Enabled {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.scheduleCronJobs(_config.Cron); err != nil {
				return types.WrapError(err, "failed to schedule cron jobs")
			}
			if ptr := s.container.Cron.Load(); ptr != nil {
				if err := (*ptr).Start(); err != nil {
					sai.Logger().Error("Failed to start cron manager", zap.Error(err))
				}
			}
		}
	}

	sai.Logger().Info("All components started successfully")
	return nil
}

// wireComponents connects the watcher, cache, notifier, metrics and health
// managers after every component exists but before traffic is served.
func (s *Service) wireComponents() {
	cachePtr := s.container.Cache.Load()

	if cachePtr != nil {
		renderCache := *cachePtr

		if notifierPtr := s.container.Notifier.Load(); notifierPtr != nil {
			notifier := *notifierPtr
			renderCache.Subscribe(func(event types.InvalidationEvent) {
				notifier.Broadcast(event)
			})
		}

		if watcherPtr := s.container.Watcher.Load(); watcherPtr != nil {
			(*watcherPtr).Subscribe(func(change types.FileChange) {
				removed := renderCache.HandleFileChange(change)
				if removed > 0 {
					sai.Logger().Info("File change invalidated cached renders",
						zap.String("path", change.Path),
						zap.String("kind", string(change.Kind)),
						zap.Int("removed", removed))
				}
			})
		}

		if healthPtr := s.container.Health.Load(); healthPtr != nil {
			(*healthPtr).RegisterChecker("cache", func(ctx context.Context) types.HealthCheck {
				cacheHealth := renderCache.Health()

				status := types.StatusHealthy
				message := ""
				if !cacheHealth.Healthy {
					status = types.StatusUnhealthy
					if len(cacheHealth.Errors) > 0 {
						message = cacheHealth.Errors[0]
					}
				} else if len(cacheHealth.Warnings) > 0 {
					message = cacheHealth.Warnings[0]
				}

				return types.HealthCheck{
					Status:  status,
					Message: message,
					Details: map[string]interface{}{
						"utilization":        cacheHealth.Utilization,
						"memory_utilization": cacheHealth.MemoryUtilization,
						"hit_rate":           cacheHealth.HitRate,
					},
				}
			})
		}

		if metricsPtr := s.container.Metrics.Load(); metricsPtr != nil {
			if registrar, ok := (*metricsPtr).(interface {
				RegisterCacheCollector(cache types.RenderCache) error
			}); ok {
				if err := registrar.RegisterCacheCollector(renderCache); err != nil {
					sai.Logger().Warn("Failed to register cache metrics collector", zap.Error(err))
				}
			}
		}
	}

	if healthPtr := s.container.Health.Load(); healthPtr != nil {
		healthManager := *healthPtr

		healthManager.RegisterChecker("docs_root", func(ctx context.Context) types.HealthCheck {
			root := sai.Renderer().Root()
			if _, err := os.Stat(root); err != nil {
				return types.HealthCheck{
					Status:  types.StatusUnhealthy,
					Message: fmt.Sprintf("docs root unavailable: %v", err),
				}
			}
			return types.HealthCheck{Status: types.StatusHealthy}
		})
	}
}

func (s *Service) scheduleCronJobs(cronConfig *types.CronConfig) error {
	cronPtr := s.container.Cron.Load()
	cachePtr := s.container.Cache.Load()
	if cronPtr == nil || cachePtr == nil {
		return nil
	}

	cronManager := *cronPtr
	renderCache := *cachePtr

	if cronConfig.SweepSchedule != "" {
		err := cronManager.Add("cache_sweep", cronConfig.SweepSchedule, func() {
			if removed := renderCache.RemoveExpired(); removed > 0 {
				sai.Logger().Info("Expired cache entries swept", zap.Int("removed", removed))
			}
		})
		if err != nil {
			return err
		}
	}

	if cronConfig.StatsSchedule != "" {
		err := cronManager.Add("cache_stats", cronConfig.StatsSchedule, func() {
			stats := renderCache.Statistics()
			sai.Logger().Info("Cache statistics",
				zap.Uint64("hits", stats.Hits),
				zap.Uint64("misses", stats.Misses),
				zap.Uint64("evictions", stats.Evictions),
				zap.Float64("hit_rate", stats.HitRate),
				zap.Int("entries", stats.CurrentEntryCount),
				zap.Int64("bytes", stats.CurrentTotalBytes))
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var stopErrors []error

	sai.Logger().Info("Stopping service components...")

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Cron.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Stop(); err != nil {
					sai.Logger().Error("Failed to stop cron manager", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if ptr := s.container.Watcher.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Stop(); err != nil {
					sai.Logger().Error("Failed to stop watcher manager", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			sai.Logger().Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			stopErrors = append(stopErrors, err)
		}
	}

	if ptr := s.container.HTTPServer.Load(); ptr != nil {
		if err := (*ptr).Stop(); err != nil {
			sai.Logger().Error("Failed to stop HTTP server", zap.Error(err))
			stopErrors = append(stopErrors, err)
		}
	}

	g, _ = errgroup.WithContext(context.Background())

	if ptr := s.container.Notifier.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop reload notifier", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop metrics manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop health manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		stopErrors = append(stopErrors, err)
	}

	if ptr := s.container.Middlewares.Load(); ptr != nil {
		(*ptr).Clear()
	}

	if ptr := s.container.Logger.Load(); ptr != nil {
		if err := (*ptr).Stop(); err != nil {
			stopErrors = append(stopErrors, err)
		}
	}

	if len(stopErrors) > 0 {
		return types.Errorf(types.ErrServerStopFailed, "errors during shutdown: %v", stopErrors)
	}

	sai.Logger().Info("All components stopped successfully")
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			sai.Logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			sai.Logger().Info("Service context cancelled")
		}

		signal.Stop(sigChan)
		close(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		sai.Logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		sai.Logger().Warn("Service shutdown: context deadline exceeded")
	default:
		sai.Logger().Info("Service shutdown: context done")
	}
}

func registerProviders(container *sai.Container, ctx context.Context, configPath string, opts []Option) error {
	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	container.SetConfig(configManager)

	_config := configManager.GetConfig()
	for _, opt := range opts {
		opt(_config)
	}

	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	container.SetLogger(loggerManager)

	router, err := server.NewFastHTTPRouter(loggerManager)
	if err != nil {
		return types.WrapError(err, "failed to register router")
	}
	container.SetRouter(router)

	renderer, err := render.NewMarkdownRenderer(loggerManager, _config.Docs)
	if err != nil {
		return types.WrapError(err, "failed to register renderer")
	}
	container.SetRenderer(renderer)

	var healthManager types.HealthManager
	if _config.Health != nil && _config.Health.Enabled {
		healthManager, err = health.NewManager(ctx, configManager, loggerManager, router)
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}
		container.SetHealth(healthManager)
	}

	var metricsManager types.MetricsManager
	if _config.Metrics != nil && _config.Metrics.Enabled {
		metricsManager, err = metrics.NewManager(ctx, configManager, loggerManager)
		if err != nil {
			return types.WrapError(err, "failed to register metrics manager")
		}
		metricsManager.RegisterRoutes(router)
		container.SetMetrics(metricsManager)
	}

	if _config.Cache != nil && _config.Cache.Enabled {
		engine, err := cache.NewEngine(loggerManager, _config.Cache.Limits)
		if err != nil {
			return types.WrapError(err, "failed to register render cache")
		}
		container.SetCache(engine)
	}

	if _config.Watcher != nil && _config.Watcher.Enabled {
		watcherManager, err := watcher.NewManager(ctx, loggerManager, renderer.Root(), _config.Watcher)
		if err != nil {
			return types.WrapError(err, "failed to register watcher manager")
		}
		container.SetWatcher(watcherManager)
	}

	if _config.Notify != nil && _config.Notify.Enabled {
		container.SetNotifier(notify.NewManager(ctx, loggerManager))
	}

	if _config.Cron != nil && _config.Cron.Enabled {
		cronManager, err := cron.NewManager(ctx, loggerManager, _config.Cron)
		if err != nil {
			return types.WrapError(err, "failed to register cron manager")
		}
		container.SetCron(cronManager)
	}

	var middlewareManager types.MiddlewareManager
	if _config.Middlewares != nil && _config.Middlewares.Enabled {
		middlewareManager, err = middleware.NewManager(ctx, configManager, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register middleware manager")
		}
		container.SetMiddlewares(middlewareManager)
	}

	httpServer, err := server.NewHTTPServer(ctx, configManager, loggerManager, middlewareManager, router)
	if err != nil {
		return types.WrapError(err, "failed to register HTTP server")
	}
	container.SetHTTPServer(httpServer)

	return nil
}
