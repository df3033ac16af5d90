package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/saiset-co/sai-docs/types"
)

// cacheCollector snapshots the cache statistics on every scrape. The cache
// keeps its own counters; nothing is double-counted here.
type cacheCollector struct {
	cache types.RenderCache

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	hitRate     *prometheus.Desc
	entryCount  *prometheus.Desc
	totalBytes  *prometheus.Desc
	utilization *prometheus.Desc
	memoryUtil  *prometheus.Desc
}

func newCacheCollector(namespace string, cache types.RenderCache) *cacheCollector {
	return &cacheCollector{
		cache: cache,
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Total number of cache hits", nil, nil),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Total number of cache misses", nil, nil),
		evictions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "evictions_total"),
			"Total number of evicted entries", nil, nil),
		hitRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hit_rate"),
			"Ratio of hits to total accesses", nil, nil),
		entryCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "entries"),
			"Current number of cached entries", nil, nil),
		totalBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "bytes"),
			"Current total size of cached values in bytes", nil, nil),
		utilization: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "entry_utilization"),
			"Entry count as a fraction of the configured limit", nil, nil),
		memoryUtil: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "memory_utilization"),
			"Total bytes as a fraction of the configured limit", nil, nil),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.hitRate
	ch <- c.entryCount
	ch <- c.totalBytes
	ch <- c.utilization
	ch <- c.memoryUtil
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.cache.Statistics()
	health := c.cache.Health()

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(stats.Evictions))
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, stats.HitRate)
	ch <- prometheus.MustNewConstMetric(c.entryCount, prometheus.GaugeValue, float64(stats.CurrentEntryCount))
	ch <- prometheus.MustNewConstMetric(c.totalBytes, prometheus.GaugeValue, float64(stats.CurrentTotalBytes))
	ch <- prometheus.MustNewConstMetric(c.utilization, prometheus.GaugeValue, health.Utilization)
	ch <- prometheus.MustNewConstMetric(c.memoryUtil, prometheus.GaugeValue, health.MemoryUtilization)
}
