package cacheaside

import (
	"errors"
	"fmt"
)

// ErrLockNotAcquired is returned by blocking lock acquisition (Mutex.Lock,
// QueryWithMutex) once the bounded retry budget is spent.
var ErrLockNotAcquired = errors.New("cacheaside: lock not acquired")

// ErrEmptyPayload is returned by Set when the codec encodes a value to zero
// bytes. Zero bytes are the null marker, so such a value cannot be stored.
var ErrEmptyPayload = errors.New("cacheaside: value encodes to empty payload")

// LoaderError carries a failure of the caller-supplied loader on a path
// where the caller waits for the result (pass-through and mutex). It is the
// only error those paths surface; store and decode failures degrade to misses.
type LoaderError struct {
	Key string
	Err error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("cacheaside: load %q: %v", e.Key, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }
