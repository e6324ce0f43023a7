package adapter

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/unkn0wn-root/cachepool"
	"github.com/unkn0wn-root/cachepool/internal/util"
)

// Pool exposes a KeyValue through the ItemPool contract. Deferred items live
// in a local buffer that reads through this adapter consult first; Commit
// flushes it through SetMultiple, one call per distinct expiration.
type Pool[V any] struct {
	kv  cachepool.KeyValue[V]
	now func() time.Time
	log cachepool.Logger

	mu    sync.Mutex
	queue map[string]*cachepool.Item[V]
	order []string
}

var _ cachepool.ItemPool[struct{}] = (*Pool[struct{}])(nil)

type PoolOptions struct {
	Now    func() time.Time // nil => time.Now
	Logger cachepool.Logger // nil => NopLogger
}

func NewPool[V any](kv cachepool.KeyValue[V], opts PoolOptions) *Pool[V] {
	p := &Pool[V]{kv: kv, now: opts.Now, log: opts.Logger}
	if p.now == nil {
		p.now = time.Now
	}
	if p.log == nil {
		p.log = cachepool.NopLogger{}
	}
	return p
}

// KV returns the wrapped key-value cache.
func (p *Pool[V]) KV() cachepool.KeyValue[V] { return p.kv }

// Derive returns an adapter of another value type over kv that shares p's
// clock and logger. Its deferred buffer is its own.
func Derive[T, V any](p *Pool[V], kv cachepool.KeyValue[T]) *Pool[T] {
	return NewPool(kv, PoolOptions{Now: p.now, Logger: p.log})
}

func (p *Pool[V]) GetItem(ctx context.Context, key string) (*cachepool.Item[V], error) {
	if err := validate("GetItem", key); err != nil {
		return nil, err
	}
	if it, ok := p.queued(key); ok {
		return it, nil
	}
	// the comma-ok flag tells a miss from a cached zero value
	v, ok, err := p.kv.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return p.item(key, v, ok), nil
}

func (p *Pool[V]) GetItems(ctx context.Context, keys []string) ([]*cachepool.Item[V], error) {
	if err := validate("GetItems", keys...); err != nil {
		return nil, err
	}
	keys = util.Dedupe(keys)
	out := make([]*cachepool.Item[V], len(keys))
	var fetch []string
	for i, k := range keys {
		if it, ok := p.queued(k); ok {
			out[i] = it
		} else {
			fetch = append(fetch, k)
		}
	}
	var err error
	if len(fetch) > 0 {
		var zero V
		var entries []cachepool.Entry[V]
		entries, err = p.kv.GetMultiple(ctx, slices.Values(fetch), zero)
		if entries == nil && err != nil {
			return nil, err
		}
		got := make(map[string]cachepool.Entry[V], len(entries))
		for _, e := range entries {
			got[e.Key] = e
		}
		for i, k := range keys {
			if out[i] == nil {
				e := got[k]
				out[i] = p.item(k, e.Value, e.Hit)
			}
		}
	}
	return out, err
}

func (p *Pool[V]) HasItem(ctx context.Context, key string) (bool, error) {
	if err := validate("HasItem", key); err != nil {
		return false, err
	}
	if it, ok := p.queued(key); ok {
		return it.IsHit(), nil
	}
	return p.kv.Has(ctx, key)
}

// Save writes item through the key-value cache with its remaining lifetime.
func (p *Pool[V]) Save(ctx context.Context, item *cachepool.Item[V]) (bool, error) {
	if err := checkItem("Save", item); err != nil {
		return false, err
	}
	v, _ := item.Get()
	return p.kv.Set(ctx, item.Key(), v, ttlOf(item))
}

func (p *Pool[V]) SaveDeferred(_ context.Context, item *cachepool.Item[V]) (bool, error) {
	if err := checkItem("SaveDeferred", item); err != nil {
		return false, err
	}
	cp := item.Clone()
	if _, hit := cp.Get(); !hit {
		var zero V
		cp.Set(zero)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		p.queue = make(map[string]*cachepool.Item[V])
	}
	if _, ok := p.queue[item.Key()]; !ok {
		p.order = append(p.order, item.Key())
	}
	p.queue[item.Key()] = cp
	return true, nil
}

// Commit flushes the buffer with one SetMultiple per distinct expiration
// instant. The buffer is cleared whatever the outcome.
func (p *Pool[V]) Commit(ctx context.Context) bool {
	return p.commit(ctx) == nil
}

type group struct {
	ttl  any
	keys []string
}

func (p *Pool[V]) commit(ctx context.Context) error {
	p.mu.Lock()
	queue, order := p.queue, p.order
	p.queue, p.order = nil, nil
	p.mu.Unlock()
	if len(order) == 0 {
		return nil
	}

	var groups []*group
	byExp := make(map[int64]*group)
	for _, k := range order {
		it := queue[k]
		var id int64
		if exp, ok := it.Expiration(); ok {
			id = exp.UnixNano()
		}
		g, ok := byExp[id]
		if !ok {
			g = &group{ttl: ttlOf(it)}
			byExp[id] = g
			groups = append(groups, g)
		}
		g.keys = append(g.keys, k)
	}

	ce := &cachepool.CommitError{}
	for _, g := range groups {
		values := func(yield func(string, V) bool) {
			for _, k := range g.keys {
				v, _ := queue[k].Get()
				if !yield(k, v) {
					return
				}
			}
		}
		ok, err := p.kv.SetMultiple(ctx, values, g.ttl)
		if ok && err == nil {
			continue
		}
		if err == nil {
			err = fmt.Errorf("adapter: SetMultiple reported failure")
		}
		ce.Keys = append(ce.Keys, g.keys...)
		for range g.keys {
			ce.Errs = append(ce.Errs, err)
		}
	}
	p.log.Debug("committed deferred items", cachepool.Fields{"total": len(order), "groups": len(groups), "failed": len(ce.Keys)})
	if len(ce.Keys) == 0 {
		return nil
	}
	return ce
}

func (p *Pool[V]) DeleteItem(ctx context.Context, key string) (bool, error) {
	if err := validate("DeleteItem", key); err != nil {
		return false, err
	}
	p.unqueue(key)
	return p.kv.Delete(ctx, key)
}

func (p *Pool[V]) DeleteItems(ctx context.Context, keys []string) (bool, error) {
	if err := validate("DeleteItems", keys...); err != nil {
		return false, err
	}
	p.unqueue(keys...)
	return p.kv.DeleteMultiple(ctx, slices.Values(keys))
}

func (p *Pool[V]) Clear(ctx context.Context) bool {
	p.mu.Lock()
	p.queue, p.order = nil, nil
	p.mu.Unlock()
	return p.kv.Clear(ctx)
}

// Close commits whatever is still buffered.
func (p *Pool[V]) Close(ctx context.Context) error {
	return p.commit(ctx)
}

func (p *Pool[V]) item(key string, v V, hit bool) *cachepool.Item[V] {
	it, _ := cachepool.NewItemWithClock[V](key, p.now)
	if hit {
		it.Set(v)
	}
	return it
}

func (p *Pool[V]) queued(key string) (*cachepool.Item[V], bool) {
	p.mu.Lock()
	it, ok := p.queue[key]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	if it.Expired() {
		return p.item(key, *new(V), false), true
	}
	return it.Clone(), true
}

func (p *Pool[V]) unqueue(keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		if _, ok := p.queue[k]; ok {
			delete(p.queue, k)
			p.order = slices.DeleteFunc(p.order, func(o string) bool { return o == k })
		}
	}
}

// ttlOf converts an item's expiration to the untyped ttl KeyValue takes: the
// absolute instant, or nil for never.
func ttlOf[V any](it *cachepool.Item[V]) any {
	if exp, ok := it.Expiration(); ok {
		return exp
	}
	return nil
}

func checkItem[V any](op string, item *cachepool.Item[V]) error {
	if item == nil {
		return &cachepool.ValidationError{Op: op, Field: "item", Reason: "nil item", Err: cachepool.ErrInvalidArgument}
	}
	return validate(op, item.Key())
}
