// Package cacheaside implements a cache-aside client in front of a slow,
// authoritative source, with a distributed lock built on the same store.
//
// Components:
//   - Provider: shared byte store with TTL, SETNX and compare-and-delete
//     (Redis for multi-process deployments; Ristretto/BigCache in-process).
//   - Codec[V]: (de)serializes V <-> []byte (JSON by default).
//   - Locker/Mutex: SETNX-based lock with per-holder tokens and atomic release.
//   - Client[ID, V]: the cache-aside engine with three read strategies.
//
// Strategies:
//
//	QueryWithPassThrough   caches confirmed absences as "" (null marker) so
//	                       lookups for missing ids stop reaching the source.
//	QueryWithMutex         on miss one holder loads while others poll the cache.
//	QueryWithLogicalExpire serves pre-warmed entries forever, stale ones too,
//	                       and refreshes expired ones on a bounded pool.
//
// Keys:
//
//	<prefix><id>        cache entries, e.g. cache:shop:42
//	lock:<prefix><id>   rebuild and mutex-strategy locks
//
// Callers own invalidation: update the source first, then Delete the key.
package cacheaside
