package cacheaside

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	pr "github.com/unkn0wn-root/cacheaside/provider"
)

const (
	defaultLockPrefix    = "lock:"
	defaultLockTTL       = 10 * time.Second
	defaultRetryInterval = 50 * time.Millisecond
	defaultMaxRetries    = 100
)

// LockerOptions tune a Locker. Only Provider is required.
type LockerOptions struct {
	Provider pr.Provider

	Prefix        string        // key namespace; "" => "lock:"
	DefaultTTL    time.Duration // hold used when callers pass <= 0; 0 => 10s
	RetryInterval time.Duration // Lock polling interval; 0 => 50ms
	MaxRetries    int           // Lock polling budget; 0 => 100
	Logger        Logger        // nil => NopLogger
	Hooks         Hooks         // nil => NopHooks
}

// Locker hands out Mutexes over a shared Provider. Every Locker carries a
// random instance id, so tokens from different processes never collide.
type Locker struct {
	p             pr.Provider
	prefix        string
	defaultTTL    time.Duration
	retryInterval time.Duration
	maxRetries    int
	log           Logger
	hooks         Hooks

	instance string
	seq      atomic.Uint64
}

func NewLocker(opts LockerOptions) (*Locker, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("cacheaside: locker provider is required")
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("cacheaside: negative MaxRetries")
	}
	return &Locker{
		p:             opts.Provider,
		prefix:        coalesce(opts.Prefix, defaultLockPrefix),
		defaultTTL:    positive(opts.DefaultTTL, defaultLockTTL),
		retryInterval: positive(opts.RetryInterval, defaultRetryInterval),
		maxRetries:    coalesce(opts.MaxRetries, defaultMaxRetries),
		log:           coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:         coalesce[Hooks](opts.Hooks, NopHooks{}),
		instance:      strings.ReplaceAll(uuid.NewString(), "-", ""),
	}, nil
}

// NewMutex returns a holder for the lock called name. Each Mutex has its own
// token: the goroutine holding the value is the owner. Mutexes are not
// reentrant; TryLock on an already held Mutex reports false.
func (l *Locker) NewMutex(name string) *Mutex {
	return &Mutex{
		l:     l,
		name:  name,
		key:   l.prefix + name,
		token: l.instance + "-" + strconv.FormatUint(l.seq.Add(1), 10),
	}
}

// TryAcquire is NewMutex followed by TryLock.
func (l *Locker) TryAcquire(ctx context.Context, name string, hold time.Duration) (*Mutex, bool) {
	m := l.NewMutex(name)
	return m, m.TryLock(ctx, hold)
}

// Mutex is one holder of a named lock. Record: <prefix><name> = token, with
// a physical TTL equal to the hold duration.
type Mutex struct {
	l     *Locker
	name  string
	key   string
	token string
}

func (m *Mutex) Name() string  { return m.name }
func (m *Mutex) Key() string   { return m.key }
func (m *Mutex) Token() string { return m.token }

// TryLock makes one SETNX attempt with TTL hold (<= 0 => DefaultTTL).
// It never blocks or retries. A store error reports false: ownership is
// never assumed when uncertain.
func (m *Mutex) TryLock(ctx context.Context, hold time.Duration) bool {
	ok, _ := m.tryLock(ctx, hold)
	return ok
}

// tryLock is TryLock that also returns the store error, so callers can tell
// a held lock from an unreachable store.
func (m *Mutex) tryLock(ctx context.Context, hold time.Duration) (bool, error) {
	ok, err := m.l.p.SetNX(ctx, m.key, []byte(m.token), positive(hold, m.l.defaultTTL))
	if err != nil {
		m.l.hooks.StoreError("setnx", m.key, err)
		m.l.log.Warn("lock acquire failed; treating as not acquired", Fields{"key": m.key, "err": err})
		return false, err
	}
	return ok, nil
}

// Lock polls TryLock at RetryInterval until it succeeds, ctx ends, or
// MaxRetries retries are spent (ErrLockNotAcquired).
func (m *Mutex) Lock(ctx context.Context, hold time.Duration) error {
	_, err := poll(ctx, m.l, m.key, func() (struct{}, error) {
		if m.TryLock(ctx, hold) {
			return struct{}{}, nil
		}
		return struct{}{}, errLockBusy
	})
	return err
}

// Unlock deletes the lock record only if it still carries this holder's
// token, atomically. It reports whether a record was deleted. A token
// mismatch (the hold expired and someone else owns the lock) and store
// errors both report false; neither is an error for the caller.
func (m *Mutex) Unlock(ctx context.Context) bool {
	ok, err := m.l.p.CompareAndDelete(ctx, m.key, []byte(m.token))
	if err != nil {
		m.l.hooks.StoreError("cad", m.key, err)
		m.l.log.Warn("lock release failed; record will expire", Fields{"key": m.key, "err": err})
		return false
	}
	if !ok {
		m.l.log.Debug("lock not held by this holder at release", Fields{"key": m.key})
	}
	return ok
}

var errLockBusy = errors.New("cacheaside: lock busy")

// poll runs op until it stops returning errLockBusy, with a constant backoff
// bounded by the locker's retry budget. Any other error ends polling at once.
func poll[T any](ctx context.Context, l *Locker, key string, op func() (T, error)) (T, error) {
	attempt := 0
	res, err := backoff.Retry(ctx,
		func() (T, error) {
			v, err := op()
			if err != nil && !errors.Is(err, errLockBusy) {
				return v, backoff.Permanent(err)
			}
			return v, err
		},
		backoff.WithBackOff(backoff.NewConstantBackOff(l.retryInterval)),
		backoff.WithMaxTries(uint(l.maxRetries)+1),
		backoff.WithNotify(func(error, time.Duration) {
			attempt++
			l.hooks.LockWait(key, attempt)
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return res, perm.Err
	}
	if errors.Is(err, errLockBusy) {
		return res, fmt.Errorf("%w: %s after %d retries", ErrLockNotAcquired, key, attempt)
	}
	return res, err
}
