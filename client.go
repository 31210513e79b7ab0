package cacheaside

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/cacheaside/codec"
	"github.com/unkn0wn-root/cacheaside/internal/keys"
	"github.com/unkn0wn-root/cacheaside/internal/wire"
	"github.com/unkn0wn-root/cacheaside/pool"
	pr "github.com/unkn0wn-root/cacheaside/provider"
)

const (
	defaultTTL     = 30 * time.Minute
	defaultNullTTL = 2 * time.Minute
)

type client[ID, V any] struct {
	provider pr.Provider
	codec    c.Codec[V]
	log      Logger
	hooks    Hooks
	locker   *Locker

	pool     *pool.Pool
	ownsPool bool

	defaultTTL     time.Duration
	nullTTL        time.Duration
	lockTTL        time.Duration
	rebuildTimeout time.Duration
	now            func() time.Time

	// collapses in-process QueryWithMutex callers per key
	sf singleflight.Group
}

func newClient[ID, V any](opts Options[V]) (*client[ID, V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("cacheaside: provider is required")
	}
	if opts.MutexMaxRetries < 0 {
		return nil, fmt.Errorf("cacheaside: negative MutexMaxRetries")
	}

	cl := &client[ID, V]{
		provider:       opts.Provider,
		codec:          opts.Codec,
		rebuildTimeout: opts.RebuildTimeout,
		now:            opts.Now,
	}

	// defaults
	if cl.codec == nil {
		cl.codec = c.JSON[V]{}
	}
	if cl.now == nil {
		cl.now = time.Now
	}
	cl.log = coalesce[Logger](opts.Logger, NopLogger{})
	cl.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cl.defaultTTL = positive(opts.DefaultTTL, defaultTTL)
	cl.nullTTL = positive(opts.NullTTL, defaultNullTTL)
	cl.lockTTL = positive(opts.RebuildLockTTL, defaultLockTTL)

	if opts.Locker != nil {
		cl.locker = opts.Locker
	} else {
		l, err := NewLocker(LockerOptions{
			Provider:      opts.Provider,
			Prefix:        opts.LockPrefix,
			DefaultTTL:    cl.lockTTL,
			RetryInterval: opts.MutexRetryInterval,
			MaxRetries:    opts.MutexMaxRetries,
			Logger:        cl.log,
			Hooks:         cl.hooks,
		})
		if err != nil {
			return nil, err
		}
		cl.locker = l
	}

	if opts.Pool != nil {
		cl.pool = opts.Pool
	} else {
		cl.pool = pool.New(opts.Workers, opts.QueueSize, pool.WithPanicHandler(func(r any) {
			cl.log.Error("rebuild task panicked", Fields{"panic": r})
		}))
		cl.ownsPool = true
	}

	return cl, nil
}

func (cl *client[ID, V]) Close(ctx context.Context) error {
	var poolErr error
	if cl.ownsPool {
		poolErr = cl.pool.Shutdown(ctx)
	}
	return errors.Join(poolErr, cl.provider.Close(ctx))
}

func (cl *client[ID, V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	payload, err := cl.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("cacheaside: encode %q: %w", key, err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("cacheaside: encode %q: %w", key, ErrEmptyPayload)
	}
	if err := cl.provider.Set(ctx, key, payload, positive(ttl, cl.defaultTTL)); err != nil {
		cl.hooks.StoreError("set", key, err)
		return err
	}
	return nil
}

func (cl *client[ID, V]) SetWithLogicalExpire(ctx context.Context, key string, value V, ttl time.Duration) error {
	payload, err := cl.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("cacheaside: encode %q: %w", key, err)
	}
	raw, err := wire.EncodeLogical(payload, cl.now().Add(positive(ttl, cl.defaultTTL)))
	if err != nil {
		return fmt.Errorf("cacheaside: encode %q: %w", key, err)
	}
	// no physical TTL: expiry is judged on read
	if err := cl.provider.Set(ctx, key, raw, 0); err != nil {
		cl.hooks.StoreError("set", key, err)
		return err
	}
	return nil
}

func (cl *client[ID, V]) Delete(ctx context.Context, key string) error {
	if err := cl.provider.Del(ctx, key); err != nil {
		cl.hooks.StoreError("del", key, err)
		return err
	}
	return nil
}

func (cl *client[ID, V]) QueryWithPassThrough(ctx context.Context, keyPrefix string, id ID, load Loader[ID, V], ttl time.Duration) (V, bool, error) {
	key := keys.Join(keyPrefix, id)
	if v, found, done := cl.peek(ctx, key); done {
		cl.hooks.Lookup(StrategyPassThrough, resultOf(found))
		return v, found, nil
	}
	cl.hooks.Lookup(StrategyPassThrough, ResultMiss)
	return cl.loadAndStore(ctx, key, id, load, ttl)
}

type loaded[V any] struct {
	v     V
	found bool
}

func (cl *client[ID, V]) QueryWithMutex(ctx context.Context, keyPrefix string, id ID, load Loader[ID, V], ttl time.Duration) (V, bool, error) {
	var zero V
	key := keys.Join(keyPrefix, id)
	if v, found, done := cl.peek(ctx, key); done {
		cl.hooks.Lookup(StrategyMutex, resultOf(found))
		return v, found, nil
	}
	cl.hooks.Lookup(StrategyMutex, ResultMiss)

	// shared work must outlive any single waiter's ctx
	shared := context.WithoutCancel(ctx)
	ch := cl.sf.DoChan(key, func() (any, error) {
		return poll(shared, cl.locker, key, func() (loaded[V], error) {
			if v, found, done := cl.peek(shared, key); done {
				return loaded[V]{v, found}, nil
			}
			m := cl.locker.NewMutex(key)
			if !m.TryLock(shared, cl.lockTTL) {
				return loaded[V]{}, errLockBusy
			}
			defer m.Unlock(shared)

			// another holder may have filled the key between our read and the lock
			if v, found, done := cl.peek(shared, key); done {
				return loaded[V]{v, found}, nil
			}
			v, found, err := cl.loadAndStore(shared, key, id, load, ttl)
			return loaded[V]{v, found}, err
		})
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		r := res.Val.(loaded[V])
		return r.v, r.found, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (cl *client[ID, V]) QueryWithLogicalExpire(ctx context.Context, keyPrefix string, id ID, load Loader[ID, V], ttl time.Duration) (V, bool, error) {
	var zero V
	key := keys.Join(keyPrefix, id)

	raw, ok := cl.read(ctx, key)
	if !ok || isNullMarker(raw) {
		// never warmed; warming is done out of band
		cl.hooks.Lookup(StrategyLogicalExpire, ResultMiss)
		return zero, false, nil
	}

	v, expireAt, err := cl.decodeLogical(raw)
	if err != nil {
		cl.hooks.DecodeFailure(key, err)
		cl.log.Warn("logical entry decode failed; scheduling rebuild", Fields{"key": key, "err": err})
		cl.hooks.Lookup(StrategyLogicalExpire, ResultMiss)
		cl.rebuild(ctx, key, id, load, ttl)
		return zero, false, nil
	}

	if cl.now().Before(expireAt) {
		cl.hooks.Lookup(StrategyLogicalExpire, ResultHit)
		return v, true, nil
	}

	cl.hooks.Lookup(StrategyLogicalExpire, ResultStale)
	cl.rebuild(ctx, key, id, load, ttl)
	return v, true, nil
}

// rebuild takes the key's lock without waiting and, if it got it, refreshes
// the entry on the pool. The lock is released on every exit path.
func (cl *client[ID, V]) rebuild(ctx context.Context, key string, id ID, load Loader[ID, V], ttl time.Duration) {
	m := cl.locker.NewMutex(key)
	ok, err := m.tryLock(ctx, cl.lockTTL)
	if err != nil {
		cl.hooks.RebuildSkipped(key, SkipLockError)
		return
	}
	if !ok {
		cl.hooks.RebuildSkipped(key, SkipLockHeld)
		return
	}

	// the caller returns before the task runs
	detached := context.WithoutCancel(ctx)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				cl.hooks.RebuildFailed(key, err)
				cl.log.Error("cache rebuild panicked", Fields{"key": key, "err": err})
			}
		}()
		defer m.Unlock(detached)

		rctx, cancel := cl.rebuildContext(detached)
		defer cancel()

		if cl.fresh(rctx, key) {
			cl.hooks.RebuildSkipped(key, SkipFresh)
			return
		}
		v, found, err := load(rctx, id)
		if err != nil {
			cl.hooks.RebuildFailed(key, err)
			cl.log.Error("cache rebuild failed; stale value kept", Fields{"key": key, "err": err})
			return
		}
		if !found {
			// record is gone from the source; stop serving it
			cl.log.Debug("rebuild found no record; dropping entry", Fields{"key": key})
			_ = cl.Delete(rctx, key)
			return
		}
		if err := cl.SetWithLogicalExpire(rctx, key, v, ttl); err != nil {
			cl.hooks.RebuildFailed(key, err)
			cl.log.Error("cache rebuild write failed", Fields{"key": key, "err": err})
		}
	}

	if !cl.pool.TrySubmit(task) {
		m.Unlock(detached)
		cl.hooks.RebuildSkipped(key, SkipQueueFull)
		cl.log.Warn("rebuild queue full; rebuild skipped", Fields{"key": key})
		return
	}
	cl.hooks.RebuildScheduled(key)
}

func (cl *client[ID, V]) rebuildContext(parent context.Context) (context.Context, context.CancelFunc) {
	if cl.rebuildTimeout > 0 {
		return context.WithTimeout(parent, cl.rebuildTimeout)
	}
	return context.WithCancel(parent)
}

// fresh reports whether key holds a logical entry that has not expired.
func (cl *client[ID, V]) fresh(ctx context.Context, key string) bool {
	raw, ok := cl.read(ctx, key)
	if !ok || isNullMarker(raw) {
		return false
	}
	_, expireAt, err := cl.decodeLogical(raw)
	return err == nil && cl.now().Before(expireAt)
}

// peek resolves key from the store alone. done=false means the caller has to
// load: the key is absent, unreadable or undecodable.
func (cl *client[ID, V]) peek(ctx context.Context, key string) (v V, found, done bool) {
	raw, ok := cl.read(ctx, key)
	if !ok {
		return v, false, false
	}
	if isNullMarker(raw) {
		return v, false, true // null marker
	}
	v, err := cl.codec.Decode(raw)
	if err != nil {
		cl.hooks.DecodeFailure(key, err)
		cl.log.Warn("cached value decode failed; treating as miss", Fields{"key": key, "err": err})
		_ = cl.provider.Del(ctx, key) // self-heal
		return v, false, false
	}
	return v, true, true
}

// loadAndStore calls the loader once and writes the outcome back: the value
// with ttl, or the null marker with the short null TTL.
func (cl *client[ID, V]) loadAndStore(ctx context.Context, key string, id ID, load Loader[ID, V], ttl time.Duration) (V, bool, error) {
	var zero V
	v, found, err := load(ctx, id)
	if err != nil {
		return zero, false, &LoaderError{Key: key, Err: err}
	}
	if !found {
		if err := cl.provider.Set(ctx, key, []byte{}, cl.nullTTL); err != nil {
			cl.hooks.StoreError("set", key, err)
			cl.log.Warn("null marker write failed", Fields{"key": key, "err": err})
		} else {
			cl.hooks.NullMarkerStored(key)
		}
		return zero, false, nil
	}
	if err := cl.Set(ctx, key, v, ttl); err != nil {
		cl.log.Warn("cache write failed; value returned uncached", Fields{"key": key, "err": err})
	}
	return v, true, nil
}

// read treats store errors as a miss.
func (cl *client[ID, V]) read(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := cl.provider.Get(ctx, key)
	if err != nil {
		cl.hooks.StoreError("get", key, err)
		cl.log.Warn("cache read failed; treating as miss", Fields{"key": key, "err": err})
		return nil, false
	}
	return raw, ok
}

func (cl *client[ID, V]) decodeLogical(raw []byte) (V, time.Time, error) {
	var zero V
	payload, expireAt, err := wire.DecodeLogical(raw)
	if err != nil {
		return zero, time.Time{}, err
	}
	v, err := cl.codec.Decode(payload)
	if err != nil {
		return zero, time.Time{}, err
	}
	return v, expireAt, nil
}

// isNullMarker reports the zero-length sentinel. Any non-empty payload,
// including single whitespace bytes from binary codecs, is a value.
func isNullMarker(raw []byte) bool { return len(raw) == 0 }

func resultOf(found bool) string {
	if found {
		return ResultHit
	}
	return ResultNull
}
