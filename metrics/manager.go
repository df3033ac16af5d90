// Package metrics exposes service and cache metrics through prometheus.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
)

type ManagerState int32

const (
	ManagerStateStopped ManagerState = iota
	ManagerStateStarting
	ManagerStateRunning
	ManagerStateStopping
)

type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	manager         types.MetricsManager
	state           atomic.Value
	shutdownTimeout time.Duration
}

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) (*Manager, error) {
	metricsConfig := config.GetConfig().Metrics

	if metricsConfig == nil {
		return nil, types.ErrMetricsConfigInvalid
	}
	if !metricsConfig.Enabled {
		return nil, types.ErrMetricsIsDisabled
	}

	managerCtx, cancel := context.WithCancel(ctx)

	wrapper := &Manager{
		ctx:             managerCtx,
		cancel:          cancel,
		logger:          logger,
		shutdownTimeout: 10 * time.Second,
	}

	wrapper.state.Store(ManagerStateStopped)

	if err := wrapper.initializeManager(metricsConfig); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	return wrapper, nil
}

func (w *Manager) initializeManager(metricsConfig *types.MetricsConfig) error {
	metricsManagerName := metricsConfig.Type
	if metricsManagerName == "" {
		metricsManagerName = "prometheus"
	}

	var manager types.MetricsManager
	var err error

	switch metricsManagerName {
	case "prometheus":
		manager, err = NewPrometheusMetrics(w.ctx, w.logger, metricsConfig)
	default:
		if creator, exists := customMetricsCreators.Load(metricsManagerName); exists {
			manager, err = creator.(types.MetricsManagerCreator)(metricsConfig)
		} else {
			return types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", metricsManagerName)
		}
	}

	if err != nil {
		return err
	}

	w.manager = manager
	if w.logger != nil {
		w.logger.Info("Metrics manager initialized", zap.String("type", metricsManagerName))
	}
	return nil
}

func (w *Manager) Start() error {
	if !w.transitionState(ManagerStateStopped, ManagerStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := w.manager.Start(); err != nil {
		w.setState(ManagerStateStopped)
		return types.WrapError(err, "failed to start metrics manager")
	}

	w.setState(ManagerStateRunning)
	return nil
}

func (w *Manager) Stop() error {
	if !w.transitionState(ManagerStateRunning, ManagerStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		w.setState(ManagerStateStopped)
		w.cancel()
	}()

	if err := w.manager.Stop(); err != nil {
		if w.logger != nil {
			w.logger.Error("Error during metrics manager shutdown", zap.Error(err))
		}
		return err
	}

	return nil
}

func (w *Manager) IsRunning() bool {
	return w.getState() == ManagerStateRunning
}

// RegisterCacheCollector wires the cache statistics into the scrape output
// when the backend supports it.
func (w *Manager) RegisterCacheCollector(cache types.RenderCache) error {
	if registrar, ok := w.manager.(interface {
		RegisterCacheCollector(types.RenderCache) error
	}); ok {
		return registrar.RegisterCacheCollector(cache)
	}
	return nil
}

func (w *Manager) RegisterRoutes(router types.HTTPRouter) {
	w.manager.RegisterRoutes(router)
}

func (w *Manager) Counter(name string, labels map[string]string) types.Counter {
	if w.IsRunning() {
		return w.manager.Counter(name, labels)
	}
	return &emptyCounter{}
}

func (w *Manager) Gauge(name string, labels map[string]string) types.Gauge {
	if w.IsRunning() {
		return w.manager.Gauge(name, labels)
	}
	return &emptyGauge{}
}

func (w *Manager) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	if w.IsRunning() {
		return w.manager.Histogram(name, buckets, labels)
	}
	return &emptyHistogram{}
}

func (w *Manager) GetMetrics() ([]byte, error) {
	if w.IsRunning() {
		return w.manager.GetMetrics()
	}
	return nil, types.ErrMetricsIsDisabled
}

func (w *Manager) getState() ManagerState {
	return w.state.Load().(ManagerState)
}

func (w *Manager) setState(newState ManagerState) bool {
	currentState := w.getState()
	return w.state.CompareAndSwap(currentState, newState)
}

func (w *Manager) transitionState(from, to ManagerState) bool {
	return w.state.CompareAndSwap(from, to)
}

type emptyCounter struct{}

func (c *emptyCounter) Inc()          {}
func (c *emptyCounter) Add(_ float64) {}
func (c *emptyCounter) Get() float64  { return 0 }

type emptyGauge struct{}

func (g *emptyGauge) Set(_ float64) {}
func (g *emptyGauge) Inc()          {}
func (g *emptyGauge) Dec()          {}
func (g *emptyGauge) Get() float64  { return 0 }

type emptyHistogram struct{}

func (h *emptyHistogram) Observe(_ float64)           {}
func (h *emptyHistogram) ObserveDuration(_ time.Time) {}
