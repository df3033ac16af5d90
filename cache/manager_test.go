package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-docs/types"
)

func TestCoalescedCompute(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	const callers = 16
	var computes int32
	release := make(chan struct{})

	var started sync.WaitGroup
	var done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)

	values := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		i := i
		go func() {
			defer done.Done()
			started.Done()
			values[i], errs[i] = engine.GetOrCompute(params("shared"), func() (string, time.Time, error) {
				atomic.AddInt32(&computes, 1)
				<-release
				return "rendered", time.Time{}, nil
			})
		}()
	}

	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&computes))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "rendered", values[i])
	}
}

func TestMissRechecksStoreBeforeCompute(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	p := params("doc")
	key := mustKey(t, p)
	_, err := engine.GetOrCompute(p, func() (string, time.Time, error) {
		return "html", time.Time{}, nil
	})
	require.NoError(t, err)

	// A caller that saw a miss but entered the flight after another flight
	// settled must be answered from the store, not render again.
	value, err := engine.computeAndStore(key, p.FilePath, func() (string, time.Time, error) {
		t.Fatal("compute ran for a cached key")
		return "", time.Time{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "html", value)
}

func TestFailedComputeNotCached(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	boom := errors.New("render exploded")
	_, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		return "", time.Time{}, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrComputeFailed)
	assert.Contains(t, err.Error(), "render exploded")

	assert.False(t, engine.Peek(mustKey(t, params("doc"))).Found)
	assert.Equal(t, 0, engine.Statistics().CurrentEntryCount)

	// A later call retries the computation.
	value, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		return "recovered", time.Time{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", value)
}

func TestHitRateArithmetic(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	stats := engine.Statistics()
	assert.Equal(t, float64(0), stats.HitRate)

	for i := 0; i < 3; i++ {
		_, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
			return "html", time.Time{}, nil
		})
		require.NoError(t, err)
	}

	stats = engine.Statistics()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

func TestWarmup(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	tasks := []types.WarmupTask{
		{Params: params("a"), Compute: func() (string, time.Time, error) { return "html-a", time.Time{}, nil }},
		{Params: params("b"), Compute: func() (string, time.Time, error) { return "html-b", time.Time{}, nil }},
		{Params: params("c"), Compute: func() (string, time.Time, error) { return "", time.Time{}, errors.New("broken source") }},
	}

	result := engine.Warmup(tasks)
	assert.Equal(t, 3, result.KeysCount)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)

	assert.True(t, engine.Peek(mustKey(t, params("a"))).Found)
	assert.True(t, engine.Peek(mustKey(t, params("b"))).Found)
	assert.False(t, engine.Peek(mustKey(t, params("c"))).Found)
}

func TestListenerPanicIsolated(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	var survived []string
	engine.Subscribe(func(event types.InvalidationEvent) {
		panic("listener bug")
	})
	engine.Subscribe(func(event types.InvalidationEvent) {
		survived = append(survived, event.Key)
	})

	_, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		return "html", time.Time{}, nil
	})
	require.NoError(t, err)

	key := mustKey(t, params("doc"))
	assert.True(t, engine.Invalidate(key))
	assert.Equal(t, []string{key}, survived)
}

func TestHealthThresholds(t *testing.T) {
	limits := testLimits()
	limits.MaxEntries = 10
	engine, _ := newTestEngine(t, limits)

	report := engine.Health()
	assert.True(t, report.Healthy)
	assert.Empty(t, report.Warnings)
	assert.Empty(t, report.Errors)

	for i := 0; i < 10; i++ {
		i := i
		_, err := engine.GetOrCompute(params(string(rune('a'+i))), func() (string, time.Time, error) {
			return "html", time.Time{}, nil
		})
		require.NoError(t, err)
	}

	report = engine.Health()
	assert.True(t, report.Healthy)
	assert.NotEmpty(t, report.Warnings)
	assert.InDelta(t, 1.0, report.Utilization, 1e-9)
}
