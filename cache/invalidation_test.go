package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-docs/types"
)

func writeTestDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func renderFile(t *testing.T, engine *Engine, path string) string {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	p := types.CacheKeyParams{Source: "markdown file", FilePath: path}
	_, err = engine.GetOrCompute(p, func() (string, time.Time, error) {
		return "<p>rendered</p>", info.ModTime(), nil
	})
	require.NoError(t, err)
	return mustKey(t, p)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	var events []types.InvalidationEvent
	engine.Subscribe(func(event types.InvalidationEvent) {
		events = append(events, event)
	})

	key := mustKey(t, params("doc"))
	_, err := engine.GetOrCompute(params("doc"), func() (string, time.Time, error) {
		return "html", time.Time{}, nil
	})
	require.NoError(t, err)

	assert.True(t, engine.Invalidate(key))
	assert.False(t, engine.Peek(key).Found)

	require.Len(t, events, 1)
	assert.Equal(t, types.ReasonManual, events[0].Reason)
	assert.Equal(t, key, events[0].Key)
	require.NotNil(t, events[0].Entry)

	// Missing key is a no-op and emits nothing.
	assert.False(t, engine.Invalidate(key))
	assert.Len(t, events, 1)

	// Eviction counter is untouched by manual invalidation.
	assert.Equal(t, uint64(0), engine.Statistics().Evictions)
}

func TestInvalidateByFilePath(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	path := writeTestDoc(t, "guide.md", "# Guide")
	keyPlain := renderFile(t, engine, path)

	withTOC := types.CacheKeyParams{
		Source:   "markdown file",
		FilePath: path,
		Options:  map[string]interface{}{types.OptionTOC: "true"},
	}
	_, err := engine.GetOrCompute(withTOC, func() (string, time.Time, error) {
		return "<nav/><p>rendered</p>", time.Time{}, nil
	})
	require.NoError(t, err)

	other := renderFile(t, engine, writeTestDoc(t, "other.md", "# Other"))

	assert.Equal(t, 2, engine.InvalidateByFilePath(path))
	assert.False(t, engine.Peek(keyPlain).Found)
	assert.False(t, engine.Peek(mustKey(t, withTOC)).Found)
	assert.True(t, engine.Peek(other).Found)

	assert.Equal(t, 0, engine.InvalidateByFilePath(path))
}

func TestInvalidateAllEmitsSingleBatchEvent(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	var events []types.InvalidationEvent
	engine.Subscribe(func(event types.InvalidationEvent) {
		events = append(events, event)
	})

	pathA := writeTestDoc(t, "a.md", "# A")
	pathB := writeTestDoc(t, "b.md", "# B")
	renderFile(t, engine, pathA)
	renderFile(t, engine, pathB)

	removed := engine.InvalidateAll([]string{pathA, pathB, "/docs/missing.md"})
	assert.Equal(t, 2, removed)

	require.Len(t, events, 1)
	assert.Equal(t, types.ReasonBatch, events[0].Reason)
	assert.Equal(t, 2, events[0].Removed)
	assert.Equal(t, []string{pathA, pathB, "/docs/missing.md"}, events[0].Paths)
}

func TestFileChangeModifiedInvalidates(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	var events []types.InvalidationEvent
	engine.Subscribe(func(event types.InvalidationEvent) {
		events = append(events, event)
	})

	path := writeTestDoc(t, "guide.md", "# Guide")
	key := renderFile(t, engine, path)

	info, err := os.Stat(path)
	require.NoError(t, err)

	removed := engine.HandleFileChange(types.FileChange{
		Path:          path,
		Kind:          types.FileModified,
		NewModifiedAt: info.ModTime().Add(time.Second),
	})
	assert.Equal(t, 1, removed)
	assert.False(t, engine.Peek(key).Found)

	require.Len(t, events, 1)
	assert.Equal(t, types.ReasonFileChanged, events[0].Reason)
}

func TestEntryRecordsModifiedTimeFromCompute(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	path := writeTestDoc(t, "guide.md", "# Guide")

	// The compute reports the mtime it observed when reading the source,
	// which predates the write that lands before the entry is inserted.
	readMtime := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := types.CacheKeyParams{Source: "markdown file", FilePath: path}
	key := mustKey(t, p)
	_, err := engine.GetOrCompute(p, func() (string, time.Time, error) {
		return "<p>stale</p>", readMtime, nil
	})
	require.NoError(t, err)

	snapshot := engine.store.entrySnapshot(key)
	require.NotNil(t, snapshot)
	assert.True(t, snapshot.SourceFileModifiedAt.Equal(readMtime))

	// The watcher reports the on-disk mtime, which differs from what the
	// render saw, so the entry built from old content must go.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.False(t, info.ModTime().Equal(readMtime))

	removed := engine.HandleFileChange(types.FileChange{
		Path:          path,
		Kind:          types.FileModified,
		NewModifiedAt: info.ModTime(),
	})
	assert.Equal(t, 1, removed)
	assert.False(t, engine.Peek(key).Found)
}

func TestFileChangeSameMtimeIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	path := writeTestDoc(t, "guide.md", "# Guide")
	key := renderFile(t, engine, path)

	info, err := os.Stat(path)
	require.NoError(t, err)

	removed := engine.HandleFileChange(types.FileChange{
		Path:          path,
		Kind:          types.FileModified,
		NewModifiedAt: info.ModTime(),
	})
	assert.Equal(t, 0, removed)
	assert.True(t, engine.Peek(key).Found)
}

func TestFileChangeRemovedAlwaysInvalidates(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	path := writeTestDoc(t, "guide.md", "# Guide")
	key := renderFile(t, engine, path)

	info, err := os.Stat(path)
	require.NoError(t, err)

	// Removal invalidates even when the reported mtime matches.
	removed := engine.HandleFileChange(types.FileChange{
		Path:          path,
		Kind:          types.FileRemoved,
		NewModifiedAt: info.ModTime(),
	})
	assert.Equal(t, 1, removed)
	assert.False(t, engine.Peek(key).Found)
}

func TestFileChangeUnmappedPathIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	renderFile(t, engine, writeTestDoc(t, "guide.md", "# Guide"))

	removed := engine.HandleFileChange(types.FileChange{
		Path: "/docs/never-rendered.md",
		Kind: types.FileModified,
	})
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, engine.Statistics().CurrentEntryCount)
}

func TestFileChangeAddedIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t, testLimits())

	path := writeTestDoc(t, "guide.md", "# Guide")
	key := renderFile(t, engine, path)

	removed := engine.HandleFileChange(types.FileChange{
		Path: path,
		Kind: types.FileAdded,
	})
	assert.Equal(t, 0, removed)
	assert.True(t, engine.Peek(key).Found)
}

func TestFileInvalidationDisabled(t *testing.T) {
	limits := testLimits()
	limits.FileInvalidationEnabled = false
	engine, _ := newTestEngine(t, limits)

	path := writeTestDoc(t, "guide.md", "# Guide")
	key := renderFile(t, engine, path)

	removed := engine.HandleFileChange(types.FileChange{
		Path:          path,
		Kind:          types.FileRemoved,
		NewModifiedAt: time.Now(),
	})
	assert.Equal(t, 0, removed)
	assert.True(t, engine.Peek(key).Found)
}
