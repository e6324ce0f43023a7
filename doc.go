// Package cachepool is a caching layer with two interchangeable API shapes
// over pluggable byte stores.
//
// Components:
//   - Item[V]: one key's lookup/write state (hit flag, deep-copied value, expiration).
//   - ItemPool[V]: item-oriented contract with a deferred queue and Commit.
//     Pool[V] is the store-backed implementation, NullPool[V] the always-miss one.
//   - KeyValue[V]: direct key-value contract. Simple[V] implements it over a store;
//     package adapter bridges it to and from ItemPool.
//   - codec.Codec[V]: (de)serializes V <-> []byte (msgpack by default).
//   - store.Store: byte store with TTLs (memory, BigCache, Ristretto, Redis).
//
// Stored entries are wrapped in a small envelope carrying the absolute
// expiration, so expiry is decided on read even when the store keeps entries
// longer. Entries that fail to decode are deleted and reported as a
// *codec.DecodingError.
//
// Deferred writes:
//
//	it, _ := pool.GetItem(ctx, "user.1")
//	_, _ = pool.SaveDeferred(ctx, it.Set(u).ExpiresAfter(time.Hour))
//	// visible to pool.GetItem here, not to other pool instances
//	ok := pool.Commit(ctx)
//
// Tag invalidation lives in package tag.
package cachepool
