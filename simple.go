package cachepool

import (
	"context"
	"errors"
	"iter"

	"github.com/unkn0wn-root/cachepool/codec"
	"github.com/unkn0wn-root/cachepool/internal/util"
	"github.com/unkn0wn-root/cachepool/store"
)

// Simple is the store-backed KeyValue. It writes the same envelope as Pool,
// so a Pool and a Simple over one store see each other's entries.
type Simple[V any] struct {
	core[V]
}

var _ KeyValue[struct{}] = (*Simple[struct{}])(nil)

func NewSimple[V any](opts Options[V]) (*Simple[V], error) {
	c, err := newCore(opts)
	if err != nil {
		return nil, err
	}
	return &Simple[V]{core: c}, nil
}

// DeriveSimple is Derive for Simple: same store, logger, hooks and clock,
// another value type. The derived Simple never owns the store.
func DeriveSimple[T, V any](s *Simple[V], c codec.Codec[T]) *Simple[T] {
	if c == nil {
		c = codec.Default[T]()
	}
	return &Simple[T]{core: core[T]{
		store: s.store,
		codec: c,
		log:   s.log,
		hooks: s.hooks,
		now:   s.now,
	}}
}

func (s *Simple[V]) Get(ctx context.Context, key string, def V) (V, error) {
	v, ok, err := s.lookup(ctx, "Get", key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

func (s *Simple[V]) Lookup(ctx context.Context, key string) (V, bool, error) {
	return s.lookup(ctx, "Lookup", key)
}

func (s *Simple[V]) lookup(ctx context.Context, op, key string) (v V, ok bool, err error) {
	if err := ValidateKey(key); err != nil {
		return v, false, withOp(err, op)
	}
	it, err := s.load(ctx, op, key)
	if err != nil || it == nil {
		return v, false, err
	}
	return it.value, true, nil
}

func (s *Simple[V]) Has(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, withOp(err, "Has")
	}
	return s.probe(ctx, "Has", key)
}

func (s *Simple[V]) Set(ctx context.Context, key string, value V, ttl any) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, withOp(err, "Set")
	}
	exp, err := ExpirationFor(ttl, s.now())
	if err != nil {
		return false, withOp(err, "Set")
	}
	rec, err := s.encode(key, value, exp)
	if err != nil {
		return false, err
	}
	return len(s.write(ctx, []record{rec})) == 0, nil
}

func (s *Simple[V]) Delete(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, withOp(err, "Delete")
	}
	return s.remove(ctx, []string{key}), nil
}

func (s *Simple[V]) Clear(ctx context.Context) bool { return s.clear(ctx) }

// GetMultiple fetches every distinct key in one store batch and answers in
// request order, duplicates included. Undecodable entries read as def and
// their errors are joined onto the result.
func (s *Simple[V]) GetMultiple(ctx context.Context, keys iter.Seq[string], def V) ([]Entry[V], error) {
	ks, err := collectKeys("GetMultiple", keys)
	if err != nil {
		return nil, err
	}
	uniq := util.Dedupe(ks)
	raws, err := store.GetMany(ctx, s.store, uniq)
	if err != nil {
		return nil, &BackendError{Op: "GetMultiple", Err: err}
	}

	found := make(map[string]V, len(raws))
	var errs []error
	for _, k := range uniq {
		raw, ok := raws[k]
		if !ok {
			continue
		}
		it, err := s.decode(ctx, k, raw)
		if err != nil {
			errs = append(errs, err)
		}
		if it != nil {
			found[k] = it.value
		}
	}

	out := make([]Entry[V], len(ks))
	for i, k := range ks {
		v, ok := found[k]
		if !ok {
			v = def
		}
		out[i] = Entry[V]{Key: k, Value: v, Hit: ok}
	}
	return out, errors.Join(errs...)
}

// SetMultiple validates and encodes every value before writing any of them.
func (s *Simple[V]) SetMultiple(ctx context.Context, values iter.Seq2[string, V], ttl any) (bool, error) {
	if values == nil {
		return false, &ValidationError{Op: "SetMultiple", Field: "values", Reason: "nil iterator", Err: ErrInvalidArgument}
	}
	exp, err := ExpirationFor(ttl, s.now())
	if err != nil {
		return false, withOp(err, "SetMultiple")
	}
	var recs []record
	for k, v := range values {
		if err := ValidateKey(k); err != nil {
			return false, withOp(err, "SetMultiple")
		}
		rec, err := s.encode(k, v, exp)
		if err != nil {
			return false, err
		}
		recs = append(recs, rec)
	}
	return len(s.write(ctx, recs)) == 0, nil
}

func (s *Simple[V]) DeleteMultiple(ctx context.Context, keys iter.Seq[string]) (bool, error) {
	ks, err := collectKeys("DeleteMultiple", keys)
	if err != nil {
		return false, err
	}
	return s.remove(ctx, ks), nil
}

// Close closes the store when Options.OwnsStore is set.
func (s *Simple[V]) Close(ctx context.Context) error { return s.close(ctx) }
