package cachepool

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/unkn0wn-root/cachepool/codec"
	"github.com/unkn0wn-root/cachepool/internal/util"
	"github.com/unkn0wn-root/cachepool/store"
)

// Pool is the store-backed ItemPool. Values are encoded with the configured
// codec and persisted inside an envelope that carries their expiration, so
// expiry is enforced on read regardless of the store's own TTL support.
//
// Pool is safe for concurrent use. The deferred queue is private to the
// instance.
type Pool[V any] struct {
	core[V]

	mu    sync.Mutex
	queue map[string]deferred[V]
	order []string // first-queued order
}

type deferred[V any] struct {
	item *Item[V]
	rec  record
}

var _ ItemPool[struct{}] = (*Pool[struct{}])(nil)

func New[V any](opts Options[V]) (*Pool[V], error) {
	c, err := newCore(opts)
	if err != nil {
		return nil, err
	}
	return &Pool[V]{core: c}, nil
}

// Derive returns a pool of another value type over the same store, logger,
// hooks and clock. The derived pool never owns the store.
func Derive[T, V any](p *Pool[V], c codec.Codec[T]) *Pool[T] {
	if c == nil {
		c = codec.Default[T]()
	}
	return &Pool[T]{core: core[T]{
		store: p.store,
		codec: c,
		log:   p.log,
		hooks: p.hooks,
		now:   p.now,
	}}
}

// NewItem returns a miss item bound to the pool's clock.
func (p *Pool[V]) NewItem(key string) (*Item[V], error) {
	return NewItemWithClock[V](key, p.now)
}

// GetItem consults the deferred queue first, then the store. A corrupt or
// undecodable entry is deleted and reported as a *codec.DecodingError.
func (p *Pool[V]) GetItem(ctx context.Context, key string) (*Item[V], error) {
	if err := ValidateKey(key); err != nil {
		return nil, withOp(err, "GetItem")
	}
	if it, ok := p.queued(key); ok {
		return it, nil
	}
	it, err := p.load(ctx, "GetItem", key)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return newItem[V](key, p.now), nil
	}
	return it, nil
}

// GetItems returns one item per distinct key in request order. Entries that
// fail to decode are deleted, returned as misses, and their errors joined
// into the returned error alongside the items.
func (p *Pool[V]) GetItems(ctx context.Context, keys []string) ([]*Item[V], error) {
	if err := validateKeys("GetItems", keys); err != nil {
		return nil, err
	}
	keys = util.Dedupe(keys)
	out := make([]*Item[V], len(keys))

	var fetch []string
	for i, k := range keys {
		if it, ok := p.queued(k); ok {
			out[i] = it
			continue
		}
		fetch = append(fetch, k)
	}

	var raws map[string][]byte
	if len(fetch) > 0 {
		var err error
		raws, err = store.GetMany(ctx, p.store, fetch)
		if err != nil {
			return nil, &BackendError{Op: "GetItems", Err: err}
		}
	}

	var errs []error
	for i, k := range keys {
		if out[i] != nil {
			continue
		}
		if raw, ok := raws[k]; ok {
			it, err := p.decode(ctx, k, raw)
			if err != nil {
				errs = append(errs, err)
			}
			if it != nil {
				out[i] = it
				continue
			}
		}
		out[i] = newItem[V](k, p.now)
	}
	return out, errors.Join(errs...)
}

// HasItem checks presence without decoding the value.
func (p *Pool[V]) HasItem(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, withOp(err, "HasItem")
	}
	p.mu.Lock()
	d, ok := p.queue[key]
	p.mu.Unlock()
	if ok {
		return !expiredAt(d.item.expiresAt, p.now()), nil
	}
	return p.probe(ctx, "HasItem", key)
}

// Save encodes and persists item immediately. It does not touch the
// deferred queue. An already expired item deletes its key instead.
func (p *Pool[V]) Save(ctx context.Context, item *Item[V]) (bool, error) {
	rec, err := p.prepare("Save", item)
	if err != nil {
		return false, err
	}
	return len(p.write(ctx, []record{rec})) == 0, nil
}

// SaveDeferred encodes item eagerly, so encoding errors surface here, and
// queues a copy of it until Commit. The queued copy reads back as a hit, as
// the committed entry would. A later save of the same key replaces
// the queued one.
func (p *Pool[V]) SaveDeferred(_ context.Context, item *Item[V]) (bool, error) {
	rec, err := p.prepare("SaveDeferred", item)
	if err != nil {
		return false, err
	}
	snap := item.Clone()
	snap.now, snap.hit = p.now, true

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		p.queue = make(map[string]deferred[V])
	}
	if _, ok := p.queue[rec.key]; !ok {
		p.order = append(p.order, rec.key)
	}
	p.queue[rec.key] = deferred[V]{item: snap, rec: rec}
	return true, nil
}

// Commit persists every queued item as one batch. The queue is cleared even
// when some writes fail.
func (p *Pool[V]) Commit(ctx context.Context) bool {
	return p.commit(ctx) == nil
}

func (p *Pool[V]) commit(ctx context.Context) error {
	p.mu.Lock()
	queue, order := p.queue, p.order
	p.queue, p.order = nil, nil
	p.mu.Unlock()

	if len(order) == 0 {
		return nil
	}
	recs := make([]record, len(order))
	for i, k := range order {
		recs[i] = queue[k].rec
	}
	failed := p.write(ctx, recs)
	p.hooks.CommitFinished(len(recs), len(failed))
	p.log.Debug("committed deferred items", Fields{"total": len(recs), "failed": len(failed)})
	if len(failed) == 0 {
		return nil
	}

	ce := &CommitError{}
	for _, k := range order {
		if err, ok := failed[k]; ok {
			ce.Keys = append(ce.Keys, k)
			ce.Errs = append(ce.Errs, err)
		}
	}
	return ce
}

func (p *Pool[V]) DeleteItem(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, withOp(err, "DeleteItem")
	}
	return p.deleteKeys(ctx, []string{key}), nil
}

// DeleteItems attempts every key. Absent keys count as deleted.
func (p *Pool[V]) DeleteItems(ctx context.Context, keys []string) (bool, error) {
	if err := validateKeys("DeleteItems", keys); err != nil {
		return false, err
	}
	return p.deleteKeys(ctx, util.Dedupe(keys)), nil
}

func (p *Pool[V]) deleteKeys(ctx context.Context, keys []string) bool {
	p.mu.Lock()
	for _, k := range keys {
		if _, ok := p.queue[k]; ok {
			delete(p.queue, k)
			p.order = slices.DeleteFunc(p.order, func(o string) bool { return o == k })
		}
	}
	p.mu.Unlock()
	return p.remove(ctx, keys)
}

// Clear drops the deferred queue and empties the store.
func (p *Pool[V]) Clear(ctx context.Context) bool {
	p.mu.Lock()
	p.queue, p.order = nil, nil
	p.mu.Unlock()
	return p.clear(ctx)
}

// Close commits the deferred queue and, with Options.OwnsStore, closes the
// store. A failed commit is reported as a *CommitError.
func (p *Pool[V]) Close(ctx context.Context) error {
	return errors.Join(p.commit(ctx), p.close(ctx))
}

// Pending reports the number of deferred items awaiting Commit.
func (p *Pool[V]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

func (p *Pool[V]) prepare(op string, item *Item[V]) (record, error) {
	if item == nil {
		return record{}, &ValidationError{Op: op, Field: "item", Reason: "nil item", Err: ErrInvalidArgument}
	}
	if err := ValidateKey(item.key); err != nil {
		return record{}, withOp(err, op)
	}
	return p.encode(item.key, item.value, item.expiresAt)
}

// queued returns a copy of the deferred item for key. A queued item that has
// since expired reads as a miss.
func (p *Pool[V]) queued(key string) (*Item[V], bool) {
	p.mu.Lock()
	d, ok := p.queue[key]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	if expiredAt(d.item.expiresAt, p.now()) {
		return newItem[V](key, p.now), true
	}
	return d.item.Clone(), true
}
