// Package cron schedules the periodic cache maintenance jobs: the eager
// TTL sweep and the statistics report.
package cron

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
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

type jobEntry struct {
	id        cron.EntryID
	name      string
	spec      string
	runCount  uint64
	failCount uint64
}

type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	cron            *cron.Cron
	timezone        *time.Location
	jobs            map[string]*jobEntry
	state           atomic.Value
	mu              sync.RWMutex
	shutdown        chan struct{}
	shutdownOnce    sync.Once
	shutdownTimeout time.Duration
}

func NewManager(ctx context.Context, logger types.Logger, config *types.CronConfig) (*Manager, error) {
	timezoneStr := "UTC"
	if config != nil && config.Timezone != "" {
		timezoneStr = config.Timezone
	}

	timezone, err := time.LoadLocation(timezoneStr)
	if err != nil {
		timezone = time.UTC
	}

	cronOptions := []cron.Option{
		cron.WithLocation(timezone),
		cron.WithChain(cron.Recover(safeCronLogger{logger: logger})),
	}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:             managerCtx,
		cancel:          cancel,
		logger:          logger,
		cron:            cron.New(cronOptions...),
		jobs:            make(map[string]*jobEntry),
		timezone:        timezone,
		shutdown:        make(chan struct{}),
		shutdownTimeout: 10 * time.Second,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.cron.Start()

	if m.logger != nil {
		m.logger.Info("Cron manager started", zap.String("timezone", m.timezone.String()))
	}
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) &&
		!m.transitionState(StateStarting, StateStopping) {
		return types.ErrServerNotRunning
	}

	var err error
	m.shutdownOnce.Do(func() {
		defer func() {
			m.setState(StateStopped)
			m.cancel()
		}()

		close(m.shutdown)

		stopCtx := m.cron.Stop()
		timeoutCtx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
		defer cancel()

		select {
		case <-stopCtx.Done():
			if m.logger != nil {
				m.logger.Info("Cron scheduler stopped gracefully")
			}
		case <-timeoutCtx.Done():
			err = types.Errorf(types.ErrServerStopFailed, "cron jobs still running after %v", m.shutdownTimeout)
			if m.logger != nil {
				m.logger.Warn("Cron manager stop timeout, some jobs may not have finished")
			}
		}
	})

	return err
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}
	if spec == "" {
		return types.ErrCronExpressionInvalid
	}
	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.shutdown:
		return types.ErrServerNotRunning
	default:
	}

	if _, exists := m.jobs[jobName]; exists {
		return types.ErrCronJobExists
	}

	entry := &jobEntry{
		name: jobName,
		spec: spec,
	}

	entryID, err := m.cron.AddFunc(spec, m.wrapJob(entry, job))
	if err != nil {
		return types.WrapError(types.ErrCronExpressionInvalid, err.Error())
	}
	entry.id = entryID
	m.jobs[jobName] = entry

	if m.logger != nil {
		m.logger.Info("Cron job added",
			zap.String("job_name", jobName),
			zap.String("spec", spec))
	}

	return nil
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.ErrCronJobNotFound
	}

	m.cron.Remove(entry.id)
	delete(m.jobs, jobName)

	if m.logger != nil {
		m.logger.Info("Cron job removed", zap.String("job_name", jobName))
	}
	return nil
}

func (m *Manager) List() []types.JobInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]types.JobInfo, 0, len(m.jobs))
	for _, entry := range m.jobs {
		info := types.JobInfo{
			Name:      entry.name,
			Spec:      entry.spec,
			RunCount:  atomic.LoadUint64(&entry.runCount),
			FailCount: atomic.LoadUint64(&entry.failCount),
		}

		if cronEntry := m.cron.Entry(entry.id); cronEntry.ID != 0 {
			info.NextRun = cronEntry.Next
			info.PrevRun = cronEntry.Prev
		}

		infos = append(infos, info)
	}
	return infos
}

func (m *Manager) wrapJob(entry *jobEntry, job func()) func() {
	return func() {
		select {
		case <-m.shutdown:
			if m.logger != nil {
				m.logger.Info("Job skipped due to shutdown", zap.String("job_name", entry.name))
			}
			return
		default:
		}

		startTime := time.Now()
		atomic.AddUint64(&entry.runCount, 1)

		failed := false
		func() {
			defer func() {
				if r := recover(); r != nil {
					failed = true
					if m.logger != nil {
						m.logger.Error("Cron job panicked",
							zap.String("job_name", entry.name),
							zap.Any("panic", r))
					}
				}
			}()
			job()
		}()

		if failed {
			atomic.AddUint64(&entry.failCount, 1)
			return
		}

		if m.logger != nil {
			m.logger.Debug("Cron job completed",
				zap.String("job_name", entry.name),
				zap.Duration("duration", time.Since(startTime)))
		}
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

type safeCronLogger struct {
	logger types.Logger
}

func (l safeCronLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l safeCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
