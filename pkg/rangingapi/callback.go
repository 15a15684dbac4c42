package rangingapi

// Callback is the caller-facing interface from spec §6.1. Every method is
// invoked on the Executor the caller supplied to CreateSession; the core
// never calls these while holding any internal lock (§5, §8).
type Callback interface {
	OnStarted(peer PeerID, technology Technology)
	OnStartFailed(peer PeerID, reason StartFailureReason)
	OnData(peer PeerID, measurement Measurement)
	OnRangingStopped(peer PeerID)
	OnClosed(reason ClosedReason)
}

// Executor schedules a callback invocation. The default is `go f()`; tests
// commonly supply a synchronous inline executor to make callback ordering
// deterministically observable.
type Executor func(f func())

// GoExecutor is the default Executor: runs f on its own goroutine.
func GoExecutor(f func()) { go f() }

// InlineExecutor runs f synchronously on the calling goroutine. Useful in
// tests; not recommended for production use since a slow callback would
// block the session's event loop.
func InlineExecutor(f func()) { f() }
