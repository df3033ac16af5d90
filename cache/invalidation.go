package cache

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
)

// Invalidate removes one entry by key and emits a manual event. Returns
// whether an entry was present.
func (e *Engine) Invalidate(key string) bool {
	entry := e.store.remove(key)
	if entry == nil {
		return false
	}

	e.emit(types.InvalidationEvent{
		Key:       key,
		Reason:    types.ReasonManual,
		Timestamp: e.now(),
		Entry:     entry,
	})
	return true
}

// InvalidateByFilePath removes every entry associated with a source file,
// resolved through the secondary index. Returns the number removed.
func (e *Engine) InvalidateByFilePath(path string) int {
	removed := 0
	for _, key := range e.store.keysForPath(path) {
		entry := e.store.remove(key)
		if entry == nil {
			continue
		}
		removed++
		e.emit(types.InvalidationEvent{
			Key:       key,
			Reason:    types.ReasonManual,
			Timestamp: e.now(),
			Entry:     entry,
		})
	}
	return removed
}

// InvalidateAll removes all entries matching the given paths and emits one
// batch event summarizing the set, not one event per entry.
func (e *Engine) InvalidateAll(paths []string) int {
	removed := 0
	for _, path := range paths {
		for _, key := range e.store.keysForPath(path) {
			if e.store.remove(key) != nil {
				removed++
			}
		}
	}

	if removed > 0 {
		e.emit(types.InvalidationEvent{
			Reason:    types.ReasonBatch,
			Timestamp: e.now(),
			Paths:     paths,
			Removed:   removed,
		})
	}
	return removed
}

// HandleFileChange reacts to one watcher notification. Added files cannot
// invalidate anything; changed or removed files drop every entry whose
// recorded source modification time differs from the new one. An unmapped
// path is a no-op.
func (e *Engine) HandleFileChange(change types.FileChange) int {
	if !e.limits.FileInvalidationEnabled {
		return 0
	}
	if change.Kind == types.FileAdded {
		return 0
	}

	removed := 0
	for _, key := range e.store.keysForPath(change.Path) {
		snapshot := e.store.entrySnapshot(key)
		if snapshot == nil {
			continue
		}
		if change.Kind == types.FileModified && snapshot.SourceFileModifiedAt.Equal(change.NewModifiedAt) {
			continue
		}

		entry := e.store.remove(key)
		if entry == nil {
			continue
		}
		removed++
		e.emit(types.InvalidationEvent{
			Key:       key,
			Reason:    types.ReasonFileChanged,
			Timestamp: e.now(),
			Entry:     entry,
		})
	}

	if removed > 0 && e.logger != nil {
		e.logger.Debug("File change invalidated cache entries",
			zap.String("path", change.Path),
			zap.String("kind", string(change.Kind)),
			zap.Int("removed", removed))
	}
	return removed
}
