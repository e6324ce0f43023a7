package adapter

import (
	"context"
	"errors"
	"iter"

	"github.com/unkn0wn-root/cachepool"
	"github.com/unkn0wn-root/cachepool/codec"
)

// KV exposes an ItemPool through the KeyValue contract. Single writes are
// saved immediately; SetMultiple defers every item and commits once.
type KV[V any] struct {
	pool cachepool.ItemPool[V]
}

var _ cachepool.KeyValue[struct{}] = (*KV[struct{}])(nil)

func NewKV[V any](pool cachepool.ItemPool[V]) *KV[V] {
	return &KV[V]{pool: pool}
}

// Pool returns the wrapped pool.
func (a *KV[V]) Pool() cachepool.ItemPool[V] { return a.pool }

func (a *KV[V]) Get(ctx context.Context, key string, def V) (V, error) {
	v, ok, err := a.Lookup(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

func (a *KV[V]) Lookup(ctx context.Context, key string) (v V, ok bool, err error) {
	it, err := a.pool.GetItem(ctx, key)
	if err != nil {
		return v, false, err
	}
	v, ok = it.Get()
	return v, ok, nil
}

func (a *KV[V]) Has(ctx context.Context, key string) (bool, error) {
	return a.pool.HasItem(ctx, key)
}

// Set fetches the item, applies value and ttl, and saves it right away.
func (a *KV[V]) Set(ctx context.Context, key string, value V, ttl any) (bool, error) {
	if err := validate("Set", key); err != nil {
		return false, err
	}
	if _, err := cachepool.ExpirationFor(ttl, zeroTime); err != nil {
		return false, stamp(err, "Set")
	}
	it, err := a.pool.GetItem(ctx, key)
	var de *codec.DecodingError
	if errors.As(err, &de) {
		// the undecodable entry is gone now; it is about to be replaced anyway
		it, err = a.pool.GetItem(ctx, key)
	}
	if err != nil {
		return false, err
	}
	if err := it.Set(value).Expire(ttl); err != nil {
		return false, err
	}
	return a.pool.Save(ctx, it)
}

func (a *KV[V]) Delete(ctx context.Context, key string) (bool, error) {
	return a.pool.DeleteItem(ctx, key)
}

func (a *KV[V]) Clear(ctx context.Context) bool { return a.pool.Clear(ctx) }

// GetMultiple returns one entry per requested key in request order,
// duplicates included.
func (a *KV[V]) GetMultiple(ctx context.Context, keys iter.Seq[string], def V) ([]cachepool.Entry[V], error) {
	ks, err := collect("GetMultiple", keys)
	if err != nil {
		return nil, err
	}
	items, err := a.pool.GetItems(ctx, ks)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*cachepool.Item[V], len(items))
	for _, it := range items {
		byKey[it.Key()] = it
	}
	out := make([]cachepool.Entry[V], len(ks))
	for i, k := range ks {
		e := cachepool.Entry[V]{Key: k, Value: def}
		if it, ok := byKey[k]; ok {
			if v, hit := it.Get(); hit {
				e.Value, e.Hit = v, true
			}
		}
		out[i] = e
	}
	return out, nil
}

// SetMultiple validates every key and the ttl, defers one item per key and
// commits them together. Every item is attempted; encoding failures are
// joined into the returned error.
func (a *KV[V]) SetMultiple(ctx context.Context, values iter.Seq2[string, V], ttl any) (bool, error) {
	if values == nil {
		return false, &cachepool.ValidationError{Op: "SetMultiple", Field: "values", Reason: "nil iterator", Err: cachepool.ErrInvalidArgument}
	}
	if _, err := cachepool.ExpirationFor(ttl, zeroTime); err != nil {
		return false, stamp(err, "SetMultiple")
	}
	var keys []string
	vals := make(map[string]V)
	for k, v := range values {
		if err := validate("SetMultiple", k); err != nil {
			return false, err
		}
		if _, dup := vals[k]; !dup {
			keys = append(keys, k)
		}
		vals[k] = v
	}
	if len(keys) == 0 {
		return true, nil
	}

	// decode failures on existing entries do not matter: every item is
	// overwritten below
	items, err := a.pool.GetItems(ctx, keys)
	if items == nil && err != nil {
		return false, err
	}

	ok := true
	var errs []error
	for _, it := range items {
		if err := it.Set(vals[it.Key()]).Expire(ttl); err != nil {
			return false, err
		}
		saved, err := a.pool.SaveDeferred(ctx, it)
		if err != nil {
			errs = append(errs, err)
		}
		ok = ok && saved
	}
	committed := a.pool.Commit(ctx)
	return ok && committed && len(errs) == 0, errors.Join(errs...)
}

func (a *KV[V]) DeleteMultiple(ctx context.Context, keys iter.Seq[string]) (bool, error) {
	ks, err := collect("DeleteMultiple", keys)
	if err != nil {
		return false, err
	}
	return a.pool.DeleteItems(ctx, ks)
}
