package cacheaside

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/cacheaside/provider"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 2, 4, 23, 31, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// memProvider is an in-process Provider whose TTLs follow the given clock.
type memProvider struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider(now func() time.Time) *memProvider {
	return &memProvider{m: make(map[string]memEntry), now: now}
}

// live returns the entry if present and unexpired. Caller holds mu.
func (p *memProvider) live(key string) (memEntry, bool) {
	e, ok := p.m[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.exp.IsZero() && !p.now().Before(e.exp) {
		delete(p.m, key)
		return memEntry{}, false
	}
	return e, true
}

func (p *memProvider) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return p.now().Add(ttl)
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, e.v...), true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = memEntry{v: append([]byte{}, value...), exp: p.expiry(ttl)}
	return nil
}

func (p *memProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live(key); ok {
		return false, nil
	}
	p.m[key] = memEntry{v: append([]byte{}, value...), exp: p.expiry(ttl)}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.live(key)
	if !ok || !bytes.Equal(e.v, expected) {
		return false, nil
	}
	delete(p.m, key)
	return true, nil
}

func (p *memProvider) Close(context.Context) error { return nil }

// raw peeks at a stored value, honoring expiry.
func (p *memProvider) raw(key string) ([]byte, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.live(key)
	return e.v, e.exp, ok
}

var errDown = errors.New("store unavailable")

// downProvider fails every call, as an unreachable store would.
type downProvider struct{}

func (downProvider) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDown }
func (downProvider) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}
func (downProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errDown
}
func (downProvider) Del(context.Context, string) error { return errDown }
func (downProvider) CompareAndDelete(context.Context, string, []byte) (bool, error) {
	return false, errDown
}
func (downProvider) Close(context.Context) error { return nil }

// recHooks counts hook events.
type recHooks struct {
	NopHooks
	mu      sync.Mutex
	lookups map[string]int // strategy/result
	skipped map[string]int
	failed  int
	waits   int
	nulls   int
	decode  int
	store   int
}

func newRecHooks() *recHooks {
	return &recHooks{lookups: map[string]int{}, skipped: map[string]int{}}
}

func (h *recHooks) Lookup(strategy, result string) {
	h.mu.Lock()
	h.lookups[strategy+"/"+result]++
	h.mu.Unlock()
}
func (h *recHooks) NullMarkerStored(string) { h.mu.Lock(); h.nulls++; h.mu.Unlock() }
func (h *recHooks) DecodeFailure(string, error) {
	h.mu.Lock()
	h.decode++
	h.mu.Unlock()
}
func (h *recHooks) StoreError(string, string, error) {
	h.mu.Lock()
	h.store++
	h.mu.Unlock()
}
func (h *recHooks) RebuildSkipped(_ string, reason string) {
	h.mu.Lock()
	h.skipped[reason]++
	h.mu.Unlock()
}
func (h *recHooks) RebuildFailed(string, error) { h.mu.Lock(); h.failed++; h.mu.Unlock() }
func (h *recHooks) LockWait(string, int)        { h.mu.Lock(); h.waits++; h.mu.Unlock() }

func (h *recHooks) count(f func(*recHooks) int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return f(h)
}

// eventually polls cond with real time until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
