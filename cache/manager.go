// Package cache implements the render cache and invalidation engine: a
// bounded in-memory store for rendered documents with LRU eviction,
// TTL expiry, file-change invalidation and coalesced computation.
package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-docs/types"
)

const warmupConcurrency = 4

// Engine is the single shared render cache instance. It owns the store, the
// statistics counters and the listener registry, and guarantees at most one
// in-flight compute per key.
type Engine struct {
	limits     types.CacheLimits
	logger     types.Logger
	store      *store
	stats      *statistics
	flight     singleflight.Group
	listeners  []types.CacheEventListener
	listenerMu sync.RWMutex
	now        func() time.Time
}

func NewEngine(logger types.Logger, limits types.CacheLimits) (*Engine, error) {
	return newEngineWithClock(logger, limits, time.Now)
}

func newEngineWithClock(logger types.Logger, limits types.CacheLimits, now func() time.Time) (*Engine, error) {
	if limits.MaxEntries <= 0 || limits.MaxTotalBytes <= 0 {
		return nil, types.Errorf(types.ErrCapacityMisconfigured,
			"max_entries=%d max_total_bytes=%d", limits.MaxEntries, limits.MaxTotalBytes)
	}

	return &Engine{
		limits: limits,
		logger: logger,
		store:  newStore(limits, now),
		stats:  newStatistics(now),
		now:    now,
	}, nil
}

// GetOrCompute is the entry point the render pipeline uses. Concurrent
// callers for the same uncached key join one in-flight computation instead
// of rendering again; a failed compute leaves no entry and every waiter
// receives the same error.
func (e *Engine) GetOrCompute(params types.CacheKeyParams, compute types.ComputeFunc) (string, error) {
	key, err := Fingerprint(params)
	if err != nil {
		return "", err
	}

	if result, expired := e.store.get(key); result.Hit {
		e.stats.recordHit()
		return result.Value, nil
	} else if expired != nil {
		e.stats.recordEvictions(1)
		e.emit(types.InvalidationEvent{
			Key:       key,
			Reason:    types.ReasonExpired,
			Timestamp: e.now(),
			Entry:     expired,
		})
	}

	e.stats.recordMiss()

	value, err, _ := e.flight.Do(key, func() (interface{}, error) {
		return e.computeAndStore(key, params.FilePath, compute)
	})
	if err != nil {
		return "", err
	}

	return value.(string), nil
}

// computeAndStore runs inside the singleflight group. A caller that was
// queued behind a flight which has just settled re-checks the store first,
// so a value another flight inserted moments ago is not rendered again.
func (e *Engine) computeAndStore(key, filePath string, compute types.ComputeFunc) (interface{}, error) {
	if result, _ := e.store.get(key); result.Hit {
		return result.Value, nil
	}

	computed, modifiedAt, computeErr := compute()
	if computeErr != nil {
		return "", types.Errorf(types.ErrComputeFailed, "%v", computeErr)
	}

	e.insert(key, computed, filePath, modifiedAt)
	return computed, nil
}

// Peek inspects without triggering or joining a computation.
func (e *Engine) Peek(key string) types.QueryResult {
	return e.store.peek(key)
}

// Warmup pre-populates entries, tolerating individual failures.
func (e *Engine) Warmup(tasks []types.WarmupTask) types.WarmupResult {
	start := e.now()
	result := types.WarmupResult{KeysCount: len(tasks)}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(warmupConcurrency)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			_, err := e.GetOrCompute(task.Params, task.Compute)

			mu.Lock()
			if err != nil {
				result.FailureCount++
			} else {
				result.SuccessCount++
			}
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	result.Duration = e.now().Sub(start)

	if e.logger != nil {
		e.logger.Info("Cache warmup finished",
			zap.Int("keys", result.KeysCount),
			zap.Int("success", result.SuccessCount),
			zap.Int("failed", result.FailureCount),
			zap.Duration("duration", result.Duration))
	}
	return result
}

// Clear empties the store and reports the before/after snapshot. One event
// carrying the given reason summarizes the removal instead of one event per
// entry.
func (e *Engine) Clear(reason types.InvalidationReason) types.ClearResult {
	result, removed := e.store.clear(reason)
	if removed > 0 {
		e.emit(types.InvalidationEvent{
			Reason:    reason,
			Timestamp: e.now(),
			Removed:   removed,
		})
	}
	return result
}

// RemoveExpired eagerly sweeps entries past their TTL. Lazy expiry on read
// remains authoritative; the sweep only reclaims memory earlier.
func (e *Engine) RemoveExpired() int {
	removed := e.store.removeExpired()
	e.stats.recordEvictions(len(removed))
	for _, entry := range removed {
		e.emit(types.InvalidationEvent{
			Key:       entry.Key,
			Reason:    types.ReasonExpired,
			Timestamp: e.now(),
			Entry:     entry,
		})
	}
	return len(removed)
}

func (e *Engine) Statistics() types.CacheStatistics {
	count, bytes := e.store.size()
	return e.stats.snapshot(count, bytes)
}

func (e *Engine) Health() types.CacheHealth {
	return health(e.limits, e.Statistics())
}

func (e *Engine) ItemsMetadata() []types.CacheItemMetadata {
	return e.store.itemsMetadata()
}

func (e *Engine) Limits() types.CacheLimits {
	return e.limits
}

// Subscribe registers a listener invoked synchronously after each removal.
// A panicking listener does not prevent the others from running.
func (e *Engine) Subscribe(listener types.CacheEventListener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

func (e *Engine) insert(key, value, sourceFilePath string, modifiedAt time.Time) {
	evicted := e.store.put(key, value, sourceFilePath, modifiedAt)
	e.stats.recordEvictions(len(evicted))
	for _, entry := range evicted {
		e.emit(types.InvalidationEvent{
			Key:       entry.Key,
			Reason:    types.ReasonCapacityLimit,
			Timestamp: e.now(),
			Entry:     entry,
		})
	}
}

func (e *Engine) emit(event types.InvalidationEvent) {
	e.listenerMu.RLock()
	listeners := make([]types.CacheEventListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenerMu.RUnlock()

	for _, listener := range listeners {
		e.notify(listener, event)
	}
}

func (e *Engine) notify(listener types.CacheEventListener, event types.InvalidationEvent) {
	defer func() {
		if r := recover(); r != nil && e.logger != nil {
			e.logger.Error("Cache event listener panicked",
				zap.String("key", event.Key),
				zap.String("reason", string(event.Reason)),
				zap.Any("panic", r))
		}
	}()

	listener(event)
}
