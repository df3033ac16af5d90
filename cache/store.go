package cache

import (
	"sync"
	"time"

	"github.com/saiset-co/sai-docs/types"
)

// store owns every cache entry and the secondary file-path index. All
// mutation happens under one mutex so that per-key entry transitions stay
// linearizable and eviction reads a consistent snapshot of access times.
type store struct {
	limits     types.CacheLimits
	entries    map[string]*types.CacheEntry
	byPath     map[string]map[string]struct{}
	totalBytes int64
	mu         sync.Mutex
	now        func() time.Time
}

func newStore(limits types.CacheLimits, now func() time.Time) *store {
	return &store{
		limits:  limits,
		entries: make(map[string]*types.CacheEntry),
		byPath:  make(map[string]map[string]struct{}),
		now:     now,
	}
}

// get reports a hit and updates access bookkeeping, or treats an entry whose
// TTL elapsed as a miss and removes it. The expired entry, if any, is
// returned so the caller can emit the removal event outside the lock.
func (s *store) get(key string) (types.QueryResult, *types.CacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return types.QueryResult{}, nil
	}

	now := s.now()
	if s.expiredAt(entry, now) {
		s.removeLocked(key)
		return types.QueryResult{}, entry
	}

	entry.LastAccessedAt = now
	entry.AccessCount++

	snapshot := *entry
	return types.QueryResult{
		Found: true,
		Hit:   true,
		Value: entry.Value,
		Entry: &snapshot,
	}, nil
}

// peek inspects without touching access stats. Expired entries read as
// absent but are left for get or the sweep to remove.
func (s *store) peek(key string) types.QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists || s.expiredAt(entry, s.now()) {
		return types.QueryResult{}
	}

	snapshot := *entry
	return types.QueryResult{
		Found: true,
		Hit:   true,
		Value: entry.Value,
		Entry: &snapshot,
	}
}

// put inserts a new entry, overwriting any existing one for the key
// (which does not count as an eviction), then enforces the limits. The
// evicted victims are returned for event emission.
func (s *store) put(key, value, sourceFilePath string, sourceFileModifiedAt time.Time) []*types.CacheEntry {
	now := s.now()
	entry := &types.CacheEntry{
		Key:                  key,
		Value:                value,
		CreatedAt:            now,
		LastAccessedAt:       now,
		SourceFilePath:       sourceFilePath,
		SourceFileModifiedAt: sourceFileModifiedAt,
		ByteSize:             int64(len(value)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.entries[key]; exists {
		s.unindexLocked(old)
		s.totalBytes -= old.ByteSize
	}

	s.entries[key] = entry
	s.totalBytes += entry.ByteSize
	if sourceFilePath != "" {
		keys, ok := s.byPath[sourceFilePath]
		if !ok {
			keys = make(map[string]struct{})
			s.byPath[sourceFilePath] = keys
		}
		keys[key] = struct{}{}
	}

	return s.enforceLimitsLocked()
}

// remove deletes and returns the entry if present. No event is emitted
// here; the caller owns the removal reason.
func (s *store) remove(key string) *types.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key)
}

// keysForPath returns the fingerprints currently associated with a source
// file, resolved through the secondary index. Keys are opaque, so this is
// the only way to find path-affected entries.
func (s *store) keysForPath(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.byPath[path]
	if len(keys) == 0 {
		return nil
	}

	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, key)
	}
	return out
}

// entrySnapshot returns a copy of the live entry without access bookkeeping.
func (s *store) entrySnapshot(key string) *types.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return nil
	}
	snapshot := *entry
	return &snapshot
}

func (s *store) clear(reason types.InvalidationReason) (types.ClearResult, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := types.ClearResult{
		BeforeSize:     len(s.entries),
		BeforeByteSize: s.totalBytes,
		ClearedCount:   len(s.entries),
		Reason:         reason,
	}

	s.entries = make(map[string]*types.CacheEntry)
	s.byPath = make(map[string]map[string]struct{})
	s.totalBytes = 0

	result.AfterSize = 0
	result.AfterByteSize = 0
	return result, result.ClearedCount
}

// removeExpired eagerly sweeps entries past their TTL.
func (s *store) removeExpired() []*types.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed []*types.CacheEntry
	for key, entry := range s.entries {
		if s.expiredAt(entry, now) {
			removed = append(removed, entry)
			s.removeLocked(key)
		}
	}
	return removed
}

func (s *store) itemsMetadata() []types.CacheItemMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	items := make([]types.CacheItemMetadata, 0, len(s.entries))
	for _, entry := range s.entries {
		item := types.CacheItemMetadata{
			Key:            entry.Key,
			FilePath:       entry.SourceFilePath,
			CreatedAt:      entry.CreatedAt,
			LastAccessedAt: entry.LastAccessedAt,
			AccessCount:    entry.AccessCount,
			Size:           entry.ByteSize,
			Expired:        s.expiredAt(entry, now),
		}
		if s.limits.TTL > 0 && !item.Expired {
			item.RemainingTTL = s.limits.TTL - now.Sub(entry.CreatedAt)
		}
		items = append(items, item)
	}
	return items
}

func (s *store) size() (int, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), s.totalBytes
}

func (s *store) expiredAt(entry *types.CacheEntry, now time.Time) bool {
	if s.limits.TTL <= 0 {
		return false
	}
	return now.Sub(entry.CreatedAt) > s.limits.TTL
}

func (s *store) removeLocked(key string) *types.CacheEntry {
	entry, exists := s.entries[key]
	if !exists {
		return nil
	}

	delete(s.entries, key)
	s.totalBytes -= entry.ByteSize
	s.unindexLocked(entry)
	return entry
}

func (s *store) unindexLocked(entry *types.CacheEntry) {
	if entry.SourceFilePath == "" {
		return
	}

	if keys, exists := s.byPath[entry.SourceFilePath]; exists {
		delete(keys, entry.Key)
		if len(keys) == 0 {
			delete(s.byPath, entry.SourceFilePath)
		}
	}
}
