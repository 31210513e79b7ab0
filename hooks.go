package cacheaside

// Lookup strategies reported to Hooks.Lookup.
const (
	StrategyPassThrough   = "pass_through"
	StrategyLogicalExpire = "logical_expire"
	StrategyMutex         = "mutex"
)

// Lookup results reported to Hooks.Lookup.
const (
	ResultHit   = "hit"   // value served from the store
	ResultNull  = "null"  // null marker served; loader not called
	ResultMiss  = "miss"  // nothing usable in the store
	ResultStale = "stale" // logically expired value served; rebuild attempted
)

// Rebuild skip reasons reported to Hooks.RebuildSkipped.
const (
	SkipLockHeld  = "lock_held"  // another holder is already rebuilding
	SkipLockError = "lock_error" // the lock store call failed
	SkipQueueFull = "queue_full" // pool rejected the task; lock released
	SkipFresh     = "fresh"      // entry was refreshed before the task ran
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The client calls them on hot paths.
type Hooks interface {
	// Every Query* call reports exactly one lookup.
	Lookup(strategy, result string)

	// A confirmed absence was cached under storageKey.
	NullMarkerStored(storageKey string)

	// A stored value did not decode and was treated as a miss.
	DecodeFailure(storageKey string, err error)

	// A store call failed. op ∈ {"get", "set", "del", "setnx", "cad"}.
	StoreError(op, storageKey string, err error)

	// Logical-expiry rebuild lifecycle.
	RebuildScheduled(storageKey string)
	RebuildSkipped(storageKey, reason string)
	RebuildFailed(storageKey string, err error)

	// A mutex-strategy caller found the lock held and will retry (attempt >= 1).
	LockWait(storageKey string, attempt int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Lookup(string, string)            {}
func (NopHooks) NullMarkerStored(string)          {}
func (NopHooks) DecodeFailure(string, error)      {}
func (NopHooks) StoreError(string, string, error) {}
func (NopHooks) RebuildScheduled(string)          {}
func (NopHooks) RebuildSkipped(string, string)    {}
func (NopHooks) RebuildFailed(string, error)      {}
func (NopHooks) LockWait(string, int)             {}
