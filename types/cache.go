package types

import (
	"time"
)

// InvalidationReason classifies why an entry left the cache. Every removal
// carries exactly one reason.
type InvalidationReason string

const (
	ReasonManual        InvalidationReason = "manual"
	ReasonFileChanged   InvalidationReason = "file_changed"
	ReasonExpired       InvalidationReason = "expired"
	ReasonCapacityLimit InvalidationReason = "capacity_limit"
	ReasonBatch         InvalidationReason = "batch"
)

// CacheKeyParams describes one render request. The fingerprint generator
// collapses it into an opaque deterministic key.
type CacheKeyParams struct {
	Source   string                 `json:"source"`
	FilePath string                 `json:"file_path,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
	Theme    string                 `json:"theme,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type CacheEntry struct {
	Key                  string    `json:"key"`
	Value                string    `json:"value"`
	CreatedAt            time.Time `json:"created_at"`
	LastAccessedAt       time.Time `json:"last_accessed_at"`
	AccessCount          int64     `json:"access_count"`
	SourceFilePath       string    `json:"source_file_path,omitempty"`
	SourceFileModifiedAt time.Time `json:"source_file_modified_at,omitempty"`
	ByteSize             int64     `json:"byte_size"`
}

// CacheLimits is fixed at construction for the cache's lifetime.
type CacheLimits struct {
	MaxEntries              int           `yaml:"max_entries" json:"max_entries"`
	MaxTotalBytes           int64         `yaml:"max_total_bytes" json:"max_total_bytes"`
	TTL                     time.Duration `yaml:"ttl" json:"ttl"`
	FileInvalidationEnabled bool          `yaml:"file_invalidation" json:"file_invalidation"`
	StatisticsEnabled       bool          `yaml:"statistics" json:"statistics"`
}

type CacheStatistics struct {
	Hits              uint64    `json:"hits"`
	Misses            uint64    `json:"misses"`
	Evictions         uint64    `json:"evictions"`
	TotalAccess       uint64    `json:"total_access"`
	HitRate           float64   `json:"hit_rate"`
	CurrentEntryCount int       `json:"current_entry_count"`
	CurrentTotalBytes int64     `json:"current_total_bytes"`
	CreatedAt         time.Time `json:"created_at"`
	LastUpdatedAt     time.Time `json:"last_updated_at"`
}

type CacheHealth struct {
	Healthy           bool     `json:"healthy"`
	Errors            []string `json:"errors,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
	Utilization       float64  `json:"utilization"`
	MemoryUtilization float64  `json:"memory_utilization"`
	HitRate           float64  `json:"hit_rate"`
}

type QueryResult struct {
	Found bool        `json:"found"`
	Hit   bool        `json:"hit"`
	Value string      `json:"value,omitempty"`
	Entry *CacheEntry `json:"entry,omitempty"`
}

type ClearResult struct {
	BeforeSize     int                `json:"before_size"`
	BeforeByteSize int64              `json:"before_byte_size"`
	AfterSize      int                `json:"after_size"`
	AfterByteSize  int64              `json:"after_byte_size"`
	ClearedCount   int                `json:"cleared_count"`
	Reason         InvalidationReason `json:"reason"`
}

// InvalidationEvent is emitted exactly once per removal. Batch events carry
// the affected paths instead of N per-key events.
type InvalidationEvent struct {
	Key       string             `json:"key,omitempty"`
	Reason    InvalidationReason `json:"reason"`
	Timestamp time.Time          `json:"timestamp"`
	Entry     *CacheEntry        `json:"entry,omitempty"`
	Paths     []string           `json:"paths,omitempty"`
	Removed   int                `json:"removed,omitempty"`
}

type CacheEventListener func(event InvalidationEvent)

type CacheItemMetadata struct {
	Key            string        `json:"key"`
	FilePath       string        `json:"file_path,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	AccessCount    int64         `json:"access_count"`
	Size           int64         `json:"size"`
	Expired        bool          `json:"expired"`
	RemainingTTL   time.Duration `json:"remaining_ttl"`
}

// ComputeFunc produces the rendered artifact for a cache miss, along with
// the source file's modification time as observed when the source was read.
// A zero time means the source has no backing file. A failed compute is
// never cached.
type ComputeFunc func() (string, time.Time, error)

type WarmupTask struct {
	Params  CacheKeyParams
	Compute ComputeFunc
}

type WarmupResult struct {
	KeysCount    int           `json:"keys_count"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Duration     time.Duration `json:"duration"`
}

// FileChange is pushed by the filesystem watcher. Only change and unlink
// events can invalidate cached entries.
type FileChange struct {
	Path          string         `json:"path"`
	Kind          FileChangeKind `json:"kind"`
	NewModifiedAt time.Time      `json:"new_modified_at"`
}

type FileChangeKind string

const (
	FileAdded    FileChangeKind = "add"
	FileModified FileChangeKind = "change"
	FileRemoved  FileChangeKind = "unlink"
)

// RenderCache is the public surface of the render cache engine. All methods
// are safe for concurrent use by in-flight HTTP requests sharing one instance.
type RenderCache interface {
	GetOrCompute(params CacheKeyParams, compute ComputeFunc) (string, error)
	Peek(key string) QueryResult
	Invalidate(key string) bool
	InvalidateByFilePath(path string) int
	InvalidateAll(paths []string) int
	HandleFileChange(change FileChange) int
	Clear(reason InvalidationReason) ClearResult
	RemoveExpired() int
	Warmup(tasks []WarmupTask) WarmupResult
	Statistics() CacheStatistics
	Health() CacheHealth
	ItemsMetadata() []CacheItemMetadata
	Subscribe(listener CacheEventListener)
	Limits() CacheLimits
}
