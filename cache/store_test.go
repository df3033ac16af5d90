package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-docs/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLimits() types.CacheLimits {
	return types.CacheLimits{
		MaxEntries:              100,
		MaxTotalBytes:           1 << 20,
		TTL:                     time.Minute,
		FileInvalidationEnabled: true,
		StatisticsEnabled:       true,
	}
}

func newTestEngine(t *testing.T, limits types.CacheLimits) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	engine, err := newEngineWithClock(nil, limits, clock.Now)
	require.NoError(t, err)
	return engine, clock
}

func params(source string) types.CacheKeyParams {
	return types.CacheKeyParams{Source: source}
}

func mustKey(t *testing.T, p types.CacheKeyParams) string {
	t.Helper()
	key, err := Fingerprint(p)
	require.NoError(t, err)
	return key
}

func TestHitAfterPut(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	value, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		return "<p>doc</p>", time.Time{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>doc</p>", value)

	result := engine.Peek(mustKey(t, params("doc")))
	assert.True(t, result.Found)
	assert.True(t, result.Hit)
	assert.Equal(t, "<p>doc</p>", result.Value)

	stats := engine.Statistics()
	assert.Equal(t, uint64(0), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	// Second call is a hit and does not recompute.
	called := false
	value, err = engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		called = true
		return "", time.Time{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>doc</p>", value)
	assert.False(t, called)

	stats = engine.Statistics()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestMissOnUnknownKey(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	result := engine.Peek("never-inserted")
	assert.False(t, result.Found)
	assert.False(t, result.Hit)
	assert.Nil(t, result.Entry)
}

func TestTTLExpiry(t *testing.T) {
	limits := testLimits()
	limits.TTL = 100 * time.Millisecond
	engine, clock := newTestEngine(t, limits)

	var events []types.InvalidationEvent
	engine.Subscribe(func(event types.InvalidationEvent) {
		events = append(events, event)
	})

	_, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		return "html", time.Time{}, nil
	})
	require.NoError(t, err)

	clock.Advance(150 * time.Millisecond)

	computed := 0
	value, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		computed++
		return "fresh", time.Time{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", value)
	assert.Equal(t, 1, computed)

	stats := engine.Statistics()
	assert.Equal(t, uint64(1), stats.Evictions)

	require.NotEmpty(t, events)
	assert.Equal(t, types.ReasonExpired, events[0].Reason)
}

func TestTTLBoundaryNotExpired(t *testing.T) {
	limits := testLimits()
	limits.TTL = 100 * time.Millisecond
	engine, clock := newTestEngine(t, limits)

	_, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		return "html", time.Time{}, nil
	})
	require.NoError(t, err)

	// Exactly at the TTL the entry is still valid; expiry needs age > TTL.
	clock.Advance(100 * time.Millisecond)

	called := false
	_, err = engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		called = true
		return "", time.Time{}, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestEntryCountEvictionLRU(t *testing.T) {
	limits := testLimits()
	limits.MaxEntries = 2
	engine, clock := newTestEngine(t, limits)

	for _, name := range []string{"a", "b"} {
		name := name
		_, err := engine.GetOrCompute(params(name), func() (string, time.Time, error) {
			return "html-" + name, time.Time{}, nil
		})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	// Touch "a" so "b" becomes the LRU victim.
	_, err := engine.GetOrCompute(params("a"), func() (string, time.Time, error) {
		return "", time.Time{}, nil
	})
	require.NoError(t, err)
	clock.Advance(time.Second)

	_, err = engine.GetOrCompute(params("c"), func() (string, time.Time, error) {
		return "html-c", time.Time{}, nil
	})
	require.NoError(t, err)

	assert.True(t, engine.Peek(mustKey(t, params("a"))).Found)
	assert.False(t, engine.Peek(mustKey(t, params("b"))).Found)
	assert.True(t, engine.Peek(mustKey(t, params("c"))).Found)

	stats := engine.Statistics()
	assert.Equal(t, 2, stats.CurrentEntryCount)
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestByteLimitSelfEviction(t *testing.T) {
	limits := testLimits()
	limits.MaxTotalBytes = 1000
	engine, _ := newTestEngine(t, limits)

	var events []types.InvalidationEvent
	engine.Subscribe(func(event types.InvalidationEvent) {
		events = append(events, event)
	})

	big := strings.Repeat("x", 1200)
	value, err := engine.GetOrCompute(params("big"), func() (string, time.Time, error) {
		return big, time.Time{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, big, value)

	stats := engine.Statistics()
	assert.Equal(t, 0, stats.CurrentEntryCount)
	assert.Equal(t, int64(0), stats.CurrentTotalBytes)
	assert.Equal(t, uint64(1), stats.Evictions)

	require.Len(t, events, 1)
	assert.Equal(t, types.ReasonCapacityLimit, events[0].Reason)
	assert.Equal(t, mustKey(t, params("big")), events[0].Key)
}

func TestByteLimitEvictsUntilUnderLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxTotalBytes = 250
	engine, clock := newTestEngine(t, limits)

	for i := 0; i < 3; i++ {
		i := i
		_, err := engine.GetOrCompute(params(fmt.Sprintf("doc-%d", i)), func() (string, time.Time, error) {
			return strings.Repeat("y", 100), time.Time{}, nil
		})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	// 300 bytes total exceeds 250; the oldest entry goes.
	stats := engine.Statistics()
	assert.Equal(t, 2, stats.CurrentEntryCount)
	assert.Equal(t, int64(200), stats.CurrentTotalBytes)
	assert.False(t, engine.Peek(mustKey(t, params("doc-0"))).Found)
}

func TestOverwriteIsNotEviction(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	key := mustKey(t, params("doc"))
	_, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		return "v1", time.Time{}, nil
	})
	require.NoError(t, err)

	engine.Invalidate(key)

	_, err = engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		return "v2", time.Time{}, nil
	})
	require.NoError(t, err)

	stats := engine.Statistics()
	assert.Equal(t, uint64(0), stats.Evictions)
	assert.Equal(t, 1, stats.CurrentEntryCount)
}

func TestClearIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	for _, name := range []string{"a", "b", "c"} {
		name := name
		_, err := engine.GetOrCompute(params(name), func() (string, time.Time, error) {
			return "html-" + name, time.Time{}, nil
		})
		require.NoError(t, err)
	}

	var events []types.InvalidationEvent
	engine.Subscribe(func(event types.InvalidationEvent) {
		events = append(events, event)
	})

	first := engine.Clear(types.ReasonManual)
	assert.Equal(t, 3, first.BeforeSize)
	assert.Equal(t, 3, first.ClearedCount)
	assert.Equal(t, 0, first.AfterSize)
	assert.Equal(t, int64(0), first.AfterByteSize)
	assert.Equal(t, types.ReasonManual, first.Reason)

	assert.Equal(t, 0, engine.Statistics().CurrentEntryCount)

	// The caller's reason travels into the single summarizing event.
	require.Len(t, events, 1)
	assert.Equal(t, types.ReasonManual, events[0].Reason)
	assert.Equal(t, 3, events[0].Removed)

	second := engine.Clear(types.ReasonManual)
	assert.Equal(t, 0, second.ClearedCount)
	assert.Equal(t, 0, second.BeforeSize)
	assert.Len(t, events, 1)
}

func TestRemoveExpiredSweep(t *testing.T) {
	limits := testLimits()
	limits.TTL = time.Second
	engine, clock := newTestEngine(t, limits)

	for _, name := range []string{"a", "b"} {
		name := name
		_, err := engine.GetOrCompute(params(name), func() (string, time.Time, error) {
			return "html", time.Time{}, nil
		})
		require.NoError(t, err)
	}

	clock.Advance(2 * time.Second)

	_, err := engine.GetOrCompute(params("c"), func() (string, time.Time, error) {
		return "html", time.Time{}, nil
	})
	require.NoError(t, err)

	removed := engine.RemoveExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, engine.Statistics().CurrentEntryCount)
	assert.Equal(t, 0, engine.RemoveExpired())
}

func TestItemsMetadata(t *testing.T) {
	limits := testLimits()
	limits.TTL = time.Minute
	engine, clock := newTestEngine(t, limits)

	_, err := engine.GetOrCompute(types.CacheKeyParams{Source: "doc", FilePath: "/docs/a.md"}, func() (string, time.Time, error) {
		return "html", time.Time{}, nil
	})
	require.NoError(t, err)

	clock.Advance(30 * time.Second)

	items := engine.ItemsMetadata()
	require.Len(t, items, 1)
	assert.Equal(t, "/docs/a.md", items[0].FilePath)
	assert.Equal(t, int64(4), items[0].Size)
	assert.False(t, items[0].Expired)
	assert.Equal(t, 30*time.Second, items[0].RemainingTTL)
}

func TestCapacityMisconfigured(t *testing.T) {
	_, err := NewEngine(nil, types.CacheLimits{MaxEntries: 0, MaxTotalBytes: 1000})
	assert.ErrorIs(t, err, types.ErrCapacityMisconfigured)

	_, err = NewEngine(nil, types.CacheLimits{MaxEntries: 10, MaxTotalBytes: 0})
	assert.ErrorIs(t, err, types.ErrCapacityMisconfigured)

	_, err = NewEngine(nil, types.CacheLimits{MaxEntries: 10, MaxTotalBytes: -5})
	assert.ErrorIs(t, err, types.ErrCapacityMisconfigured)
}
