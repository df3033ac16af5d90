package types

// ReloadNotifier pushes invalidation events to connected front-end clients so
// an open page reloads when its source file changes.
type ReloadNotifier interface {
	LifecycleManager
	Broadcast(event InvalidationEvent)
	ClientCount() int
}
