package types

// FileChangeHandler consumes watcher events. The render cache's invalidation
// coordinator is the primary subscriber.
type FileChangeHandler func(change FileChange)

type WatcherManager interface {
	LifecycleManager
	Subscribe(handler FileChangeHandler)
}
