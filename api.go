package cachepool

import (
	"context"
	"iter"
	"time"

	"github.com/unkn0wn-root/cachepool/codec"
	"github.com/unkn0wn-root/cachepool/store"
)

// ItemPool is the item-oriented cache contract with deferred/commit batching.
//
// Every key-accepting method validates all keys before touching storage and
// returns a *ValidationError on malformed input. Backend failures on writes
// surface as a false result; backend failures on reads as a *BackendError.
type ItemPool[V any] interface {
	// GetItem returns a hit item when key holds a live value, a miss item
	// otherwise. Expired entries are deleted as a side effect.
	GetItem(ctx context.Context, key string) (*Item[V], error)
	// GetItems returns one item per distinct key, in request order.
	GetItems(ctx context.Context, keys []string) ([]*Item[V], error)
	HasItem(ctx context.Context, key string) (bool, error)

	// Save persists item immediately.
	Save(ctx context.Context, item *Item[V]) (bool, error)
	// SaveDeferred queues item until Commit. Queued items are visible to reads
	// through the same pool instance only.
	SaveDeferred(ctx context.Context, item *Item[V]) (bool, error)
	// Commit persists the deferred queue and clears it, even on failure.
	Commit(ctx context.Context) bool

	DeleteItem(ctx context.Context, key string) (bool, error)
	DeleteItems(ctx context.Context, keys []string) (bool, error)
	Clear(ctx context.Context) bool

	// Close commits whatever is still deferred.
	Close(ctx context.Context) error
}

// KeyValue is the direct key-value cache contract.
//
// ttl arguments accept the shapes documented on ExpirationFor; nil means the
// entry never expires. Batch inputs are iterators; a nil iterator is a
// *ValidationError.
type KeyValue[V any] interface {
	// Get returns the cached value, or def on a miss.
	Get(ctx context.Context, key string, def V) (V, error)
	// Lookup is Get with an explicit hit flag.
	Lookup(ctx context.Context, key string) (V, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value V, ttl any) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) bool

	// GetMultiple returns one entry per requested key, in request order.
	// Missing keys carry def.
	GetMultiple(ctx context.Context, keys iter.Seq[string], def V) ([]Entry[V], error)
	SetMultiple(ctx context.Context, values iter.Seq2[string, V], ttl any) (bool, error)
	DeleteMultiple(ctx context.Context, keys iter.Seq[string]) (bool, error)
}

// Entry is one key's result in a batch read.
type Entry[V any] struct {
	Key   string
	Value V
	Hit   bool
}

// Options configure store-backed pools. Only Store is required; others have
// sensible defaults.
type Options[V any] struct {
	// Required
	Store store.Store

	Codec  codec.Codec[V]   // nil => codec.Default (msgpack)
	Logger Logger           // nil => NopLogger
	Hooks  Hooks            // nil => NopHooks
	Now    func() time.Time // nil => time.Now
	// OwnsStore makes Close close the store as well.
	OwnsStore bool
}
