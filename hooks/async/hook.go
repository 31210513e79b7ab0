// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    LookupEvery: 100, // sample lookups: ~every 100th
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	client, _ := cacheaside.New[int, Shop](cacheaside.Options[Shop]{
//	    Provider: provider,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"context"
	"sync/atomic"

	"github.com/unkn0wn-root/cacheaside"
	"github.com/unkn0wn-root/cacheaside/pool"
)

// Hooks forwards events to inner on a pool. Events that do not fit the
// queue are dropped and counted.
type Hooks struct {
	inner   cacheaside.Hooks
	p       *pool.Pool
	dropped atomic.Uint64
}

var _ cacheaside.Hooks = (*Hooks)(nil)

func New(inner cacheaside.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	return &Hooks{inner: inner, p: pool.New(workers, qlen)}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (h *Hooks) Close() {
	_ = h.p.Shutdown(context.Background())
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if !h.p.TrySubmit(f) {
		h.dropped.Add(1)
	}
}

func (h *Hooks) Lookup(s, r string)        { h.try(func() { h.inner.Lookup(s, r) }) }
func (h *Hooks) NullMarkerStored(k string) { h.try(func() { h.inner.NullMarkerStored(k) }) }
func (h *Hooks) DecodeFailure(k string, err error) {
	h.try(func() { h.inner.DecodeFailure(k, err) })
}
func (h *Hooks) StoreError(op, k string, err error) {
	h.try(func() { h.inner.StoreError(op, k, err) })
}
func (h *Hooks) RebuildScheduled(k string) { h.try(func() { h.inner.RebuildScheduled(k) }) }
func (h *Hooks) RebuildSkipped(k, r string) {
	h.try(func() { h.inner.RebuildSkipped(k, r) })
}
func (h *Hooks) RebuildFailed(k string, err error) {
	h.try(func() { h.inner.RebuildFailed(k, err) })
}
func (h *Hooks) LockWait(k string, n int) { h.try(func() { h.inner.LockWait(k, n) }) }
