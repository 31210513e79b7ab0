package cacheaside

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/cacheaside/codec"
	"github.com/unkn0wn-root/cacheaside/pool"
	pr "github.com/unkn0wn-root/cacheaside/provider"
)

// Loader fetches the value for id from the authoritative source.
// found=false with a nil error means the record does not exist.
type Loader[ID, V any] func(ctx context.Context, id ID) (v V, found bool, err error)

// Client is the cache-aside API. ID is the caller's identifier type (the key
// is prefix ++ id), V the cached value type, serialized by a Codec[V].
//
// A zero ttl means Options.DefaultTTL.
type Client[ID, V any] interface {
	// Set writes value with a physical TTL.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	// SetWithLogicalExpire writes value without a physical TTL, stamped with
	// a logical expiry of now+ttl. Used to warm keys for QueryWithLogicalExpire.
	SetWithLogicalExpire(ctx context.Context, key string, value V, ttl time.Duration) error
	// Delete removes key. Call it after the authoritative write commits.
	Delete(ctx context.Context, key string) error

	// QueryWithPassThrough reads through the cache and caches confirmed
	// absences with a short TTL. Loader errors surface as *LoaderError.
	QueryWithPassThrough(ctx context.Context, keyPrefix string, id ID, load Loader[ID, V], ttl time.Duration) (V, bool, error)

	// QueryWithLogicalExpire serves warmed entries without ever waiting on the
	// loader. Expired entries are returned as-is while one rebuild runs in the
	// background. Keys that were never warmed report found=false.
	QueryWithLogicalExpire(ctx context.Context, keyPrefix string, id ID, load Loader[ID, V], ttl time.Duration) (V, bool, error)

	// QueryWithMutex allows a single loader call per key across processes;
	// other callers wait and re-read the cache. Returns ErrLockNotAcquired
	// when the retry budget runs out, *LoaderError on loader failure.
	QueryWithMutex(ctx context.Context, keyPrefix string, id ID, load Loader[ID, V], ttl time.Duration) (V, bool, error)

	// Close drains the rebuild pool (if owned) and closes the provider.
	Close(ctx context.Context) error
}

// Options tune the client. Only Provider is required; others have
// sensible defaults.
type Options[V any] struct {
	// Required
	Provider pr.Provider

	Codec      c.Codec[V]    // nil => codec.JSON[V]
	Logger     Logger        // nil => NopLogger
	Hooks      Hooks         // nil => NopHooks
	DefaultTTL time.Duration // 0 => 30m
	NullTTL    time.Duration // null-marker TTL; 0 => 2m

	LockPrefix         string        // "" => "lock:"
	RebuildLockTTL     time.Duration // hold for rebuild/mutex locks; 0 => 10s
	MutexRetryInterval time.Duration // 0 => 50ms
	MutexMaxRetries    int           // 0 => 100
	Locker             *Locker       // nil => built from the fields above

	Workers        int           // rebuild pool size; 0 => 10
	QueueSize      int           // rebuild queue; 0 => 1024
	Pool           *pool.Pool    // externally owned pool; Close won't shut it down
	RebuildTimeout time.Duration // 0 => rebuilds are not time-limited

	Now func() time.Time // clock for logical expiry; nil => time.Now
}

func New[ID, V any](opts Options[V]) (Client[ID, V], error) {
	return newClient[ID, V](opts)
}
