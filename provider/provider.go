// Package provider defines the storage abstraction used by cacheaside.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata visible to the caller, no re-encoding, no mutation). If a store needs
// internal framing (e.g., to emulate per-key expiry), it MUST be fully reversed
// so that the bytes returned by Get are identical to the bytes provided to Set.
//
// An empty value is meaningful: cacheaside stores "" as a null marker, so a
// present empty value must be reported as ([]byte{}, true, nil), never as a miss.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrRejected is returned by Set on stores with an admission policy when the
// write was dropped.
var ErrRejected = errors.New("provider: write rejected")

// Provider is a minimal byte store with TTLs and the two atomic primitives the
// distributed lock needs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key is absent, atomically.
	// Returns true iff this call created the key.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// CompareAndDelete deletes key only if its current value equals expected,
	// as one indivisible operation. Returns true iff the key was deleted.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
