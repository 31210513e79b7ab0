package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/cacheaside"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	LookupEvery   uint64
	LockWaitEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	lookupCtr   atomic.Uint64
	lockWaitCtr atomic.Uint64
}

var _ cacheaside.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Lookup(strategy, result string) {
	if h.l == nil || !sample(h.opts.LookupEvery, &h.lookupCtr) {
		return
	}
	h.l.Debug("cacheaside.lookup",
		"strategy", strategy,
		"result", result)
}

func (h *Hooks) NullMarkerStored(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("cacheaside.null_marker_stored", "key", h.redact(storageKey))
}

func (h *Hooks) DecodeFailure(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cacheaside.decode_failure",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) StoreError(op, storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cacheaside.store_error",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) RebuildScheduled(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("cacheaside.rebuild_scheduled", "key", h.redact(storageKey))
}

func (h *Hooks) RebuildSkipped(storageKey, reason string) {
	if h.l == nil {
		return
	}
	lvl := slog.LevelDebug
	if reason == cacheaside.SkipQueueFull || reason == cacheaside.SkipLockError {
		lvl = slog.LevelWarn
	}
	h.l.Log(context.Background(), lvl, "cacheaside.rebuild_skipped",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) RebuildFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("cacheaside.rebuild_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) LockWait(storageKey string, attempt int) {
	if h.l == nil || !sample(h.opts.LockWaitEvery, &h.lockWaitCtr) {
		return
	}
	h.l.Debug("cacheaside.lock_wait",
		"key", h.redact(storageKey),
		"attempt", attempt)
}
