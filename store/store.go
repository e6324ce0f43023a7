// Package store defines the byte store abstraction pools persist into.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata visible to the caller, no re-encoding, no mutation). If a store performs
// internal transforms (e.g. an expiry header), they MUST be fully reversed.
//
// The pool owns the value format (see internal/wire). External code writing
// foreign bytes under keys a pool reads will be treated as corruption and the
// entry deleted on read.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrRejected marks a write the store intentionally refused (admission
// policy, memory pressure). It is reported through SetMany results.
var ErrRejected = errors.New("store: write rejected")

// Store is a minimal byte store with TTLs.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// An entry whose TTL has elapsed is a miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means no expiry.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds a live entry.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear removes every entry the store owns.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Entry is one write of a batch.
type Entry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Batcher is implemented by stores that can apply a batch in one round-trip
// or under one lock. Results map failing keys to their error; a nil or empty
// map means every key succeeded. Every key must be attempted.
type Batcher interface {
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMany(ctx context.Context, entries []Entry) map[string]error
	DeleteMany(ctx context.Context, keys []string) map[string]error
}

// GetMany returns the hits among keys, using the store's Batcher when present.
func GetMany(ctx context.Context, s Store, keys []string) (map[string][]byte, error) {
	if b, ok := s.(Batcher); ok {
		return b.GetMany(ctx, keys)
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetMany writes every entry, never stopping at the first failure.
// Rejected writes are reported as ErrRejected.
func SetMany(ctx context.Context, s Store, entries []Entry) map[string]error {
	if len(entries) == 0 {
		return nil
	}
	if b, ok := s.(Batcher); ok {
		return b.SetMany(ctx, entries)
	}
	var failed map[string]error
	for _, e := range entries {
		ok, err := s.Set(ctx, e.Key, e.Value, e.TTL)
		if err == nil && !ok {
			err = ErrRejected
		}
		if err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[e.Key] = err
		}
	}
	return failed
}

// DeleteMany deletes every key, never stopping at the first failure.
func DeleteMany(ctx context.Context, s Store, keys []string) map[string]error {
	if len(keys) == 0 {
		return nil
	}
	if b, ok := s.(Batcher); ok {
		return b.DeleteMany(ctx, keys)
	}
	var failed map[string]error
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[k] = err
		}
	}
	return failed
}
