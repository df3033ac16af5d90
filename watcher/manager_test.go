package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-docs/types"
)

type changeRecorder struct {
	mu      sync.Mutex
	changes []types.FileChange
}

func (r *changeRecorder) record(change types.FileChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *changeRecorder) snapshot() []types.FileChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.FileChange, len(r.changes))
	copy(out, r.changes)
	return out
}

func (r *changeRecorder) waitFor(t *testing.T, predicate func([]types.FileChange) bool) []types.FileChange {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if changes := r.snapshot(); predicate(changes) {
			return changes
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("watcher changes never matched, got %v", r.snapshot())
	return nil
}

func newTestWatcher(t *testing.T) (*Manager, string, *changeRecorder) {
	t.Helper()
	root := t.TempDir()

	manager, err := NewManager(context.Background(), nil, root, &types.WatcherConfig{
		Enabled:  true,
		Debounce: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	recorder := &changeRecorder{}
	manager.Subscribe(recorder.record)

	require.NoError(t, manager.Start())
	t.Cleanup(func() {
		_ = manager.Stop()
	})

	return manager, root, recorder
}

func TestWatcherRejectsInvalidRoot(t *testing.T) {
	_, err := NewManager(context.Background(), nil, "/nonexistent/docs/root", nil)
	assert.ErrorIs(t, err, types.ErrWatcherRootInvalid)
}

func TestWatcherLifecycle(t *testing.T) {
	root := t.TempDir()
	manager, err := NewManager(context.Background(), nil, root, nil)
	require.NoError(t, err)

	assert.False(t, manager.IsRunning())
	require.NoError(t, manager.Start())
	assert.True(t, manager.IsRunning())
	assert.ErrorIs(t, manager.Start(), types.ErrServerAlreadyRunning)

	require.NoError(t, manager.Stop())
	assert.False(t, manager.IsRunning())
	assert.ErrorIs(t, manager.Stop(), types.ErrServerNotRunning)
}

func TestWatcherReportsCreateAndWrite(t *testing.T) {
	_, root, recorder := newTestWatcher(t)

	path := filepath.Join(root, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("# Guide"), 0o644))

	changes := recorder.waitFor(t, func(changes []types.FileChange) bool {
		return len(changes) >= 1
	})
	assert.Equal(t, path, changes[0].Path)
	assert.False(t, changes[0].NewModifiedAt.IsZero())
}

func TestWatcherReportsRemove(t *testing.T) {
	_, root, recorder := newTestWatcher(t)

	path := filepath.Join(root, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("# Guide"), 0o644))
	recorder.waitFor(t, func(changes []types.FileChange) bool {
		return len(changes) >= 1
	})

	require.NoError(t, os.Remove(path))

	recorder.waitFor(t, func(changes []types.FileChange) bool {
		for _, change := range changes {
			if change.Path == path && change.Kind == types.FileRemoved {
				return true
			}
		}
		return false
	})
}

func TestWatcherDebouncesBursts(t *testing.T) {
	_, root, recorder := newTestWatcher(t)

	path := filepath.Join(root, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	recorder.waitFor(t, func(changes []types.FileChange) bool {
		return len(changes) >= 1
	})
	before := len(recorder.snapshot())

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("burst"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	changes := recorder.waitFor(t, func(changes []types.FileChange) bool {
		return len(changes) > before
	})

	// One debounce window collapses the burst into a single notification.
	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, len(recorder.snapshot()), before+2)
	assert.Equal(t, types.FileModified, changes[len(changes)-1].Kind)
}

func TestWatcherPicksUpNewSubdirectories(t *testing.T) {
	_, root, recorder := newTestWatcher(t)

	subdir := filepath.Join(root, "guides")
	require.NoError(t, os.Mkdir(subdir, 0o755))
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(subdir, "setup.md")
	require.NoError(t, os.WriteFile(path, []byte("# Setup"), 0o644))

	recorder.waitFor(t, func(changes []types.FileChange) bool {
		for _, change := range changes {
			if change.Path == path {
				return true
			}
		}
		return false
	})
}
