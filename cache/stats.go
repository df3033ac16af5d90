package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-docs/types"
)

// statistics holds the monotonic counters for one cache instance. Counters
// are plain atomics so hot-path reads never take the store lock.
type statistics struct {
	hits        uint64
	misses      uint64
	evictions   uint64
	createdAt   time.Time
	lastUpdated int64
	now         func() time.Time
}

func newStatistics(now func() time.Time) *statistics {
	s := &statistics{
		createdAt: now(),
		now:       now,
	}
	s.lastUpdated = s.createdAt.UnixNano()
	return s
}

func (s *statistics) recordHit() {
	atomic.AddUint64(&s.hits, 1)
	s.touch()
}

func (s *statistics) recordMiss() {
	atomic.AddUint64(&s.misses, 1)
	s.touch()
}

func (s *statistics) recordEvictions(count int) {
	if count <= 0 {
		return
	}
	atomic.AddUint64(&s.evictions, uint64(count))
	s.touch()
}

func (s *statistics) touch() {
	atomic.StoreInt64(&s.lastUpdated, s.now().UnixNano())
}

func (s *statistics) snapshot(entryCount int, totalBytes int64) types.CacheStatistics {
	hits := atomic.LoadUint64(&s.hits)
	misses := atomic.LoadUint64(&s.misses)
	total := hits + misses

	stats := types.CacheStatistics{
		Hits:              hits,
		Misses:            misses,
		Evictions:         atomic.LoadUint64(&s.evictions),
		TotalAccess:       total,
		CurrentEntryCount: entryCount,
		CurrentTotalBytes: totalBytes,
		CreatedAt:         s.createdAt,
		LastUpdatedAt:     time.Unix(0, atomic.LoadInt64(&s.lastUpdated)),
	}
	if total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// health derives the diagnostic view. Utilization above 1.0 should be
// structurally impossible given the eviction policy but is still checked.
func health(limits types.CacheLimits, stats types.CacheStatistics) types.CacheHealth {
	h := types.CacheHealth{
		Healthy: true,
		HitRate: stats.HitRate,
	}

	if limits.MaxEntries > 0 {
		h.Utilization = float64(stats.CurrentEntryCount) / float64(limits.MaxEntries)
	}
	if limits.MaxTotalBytes > 0 {
		h.MemoryUtilization = float64(stats.CurrentTotalBytes) / float64(limits.MaxTotalBytes)
	}

	if h.Utilization > 1.0 {
		h.Healthy = false
		h.Errors = append(h.Errors, fmt.Sprintf("entry count %d exceeds limit %d", stats.CurrentEntryCount, limits.MaxEntries))
	}
	if h.MemoryUtilization > 1.0 {
		h.Healthy = false
		h.Errors = append(h.Errors, fmt.Sprintf("total bytes %d exceeds limit %d", stats.CurrentTotalBytes, limits.MaxTotalBytes))
	}
	if limits.StatisticsEnabled && stats.Hits+stats.Misses != stats.TotalAccess {
		h.Healthy = false
		h.Errors = append(h.Errors, "statistics counters inconsistent")
	}

	if h.Utilization > 0.9 && h.Utilization <= 1.0 {
		h.Warnings = append(h.Warnings, "entry utilization above 90%, heavy eviction imminent")
	}
	if h.MemoryUtilization > 0.9 && h.MemoryUtilization <= 1.0 {
		h.Warnings = append(h.Warnings, "memory utilization above 90%, heavy eviction imminent")
	}

	return h
}
