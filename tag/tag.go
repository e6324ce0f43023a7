// Package tag adds tag-based invalidation on top of an ItemPool.
//
// Each tag is stored in a tag pool under a key derived from the tag name; its
// value is the set of member keys. InvalidateTags deletes the members from the
// wrapped pool first and the tag entries after, so a failed invalidation can
// simply be retried.
package tag

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/cachepool"
	"github.com/unkn0wn-root/cachepool/adapter"
	"github.com/unkn0wn-root/cachepool/internal/util"
)

// ErrNoTagPool is returned by New when no tag pool is configured and none
// can be derived from the wrapped pool.
var ErrNoTagPool = errors.New("tag: no tag pool")

type Options struct {
	// TagPool stores tag -> member keys. Defaults to a pool over the wrapped
	// one's store when that is a *cachepool.Pool, a cachepool.NullPool or an
	// *adapter.Pool over a *cachepool.Simple. Any other pool needs it set.
	TagPool cachepool.ItemPool[[]string]
	Logger  cachepool.Logger // nil => NopLogger
}

// Pool is a tag-aware ItemPool. All ItemPool methods go straight to the
// wrapped pool.
type Pool[V any] struct {
	cachepool.ItemPool[V]
	tags cachepool.ItemPool[[]string]
	log  cachepool.Logger
}

func New[V any](cache cachepool.ItemPool[V], opts Options) (*Pool[V], error) {
	tags := opts.TagPool
	if tags == nil {
		var ok bool
		if tags, ok = deriveTagPool(cache); !ok {
			return nil, ErrNoTagPool
		}
	}
	log := opts.Logger
	if log == nil {
		log = cachepool.NopLogger{}
	}
	return &Pool[V]{ItemPool: cache, tags: tags, log: log}, nil
}

// deriveTagPool builds a tag pool over the same storage as cache.
func deriveTagPool[V any](cache cachepool.ItemPool[V]) (cachepool.ItemPool[[]string], bool) {
	switch c := cache.(type) {
	case *cachepool.Pool[V]:
		return cachepool.Derive[[]string](c, nil), true
	case cachepool.NullPool[V]:
		return cachepool.NullPool[[]string]{}, true
	case *adapter.Pool[V]:
		if s, ok := c.KV().(*cachepool.Simple[V]); ok {
			return adapter.Derive(c, cachepool.DeriveSimple[[]string](s, nil)), true
		}
	}
	return nil, false
}

// TagPool returns the pool holding the tag index.
func (p *Pool[V]) TagPool() cachepool.ItemPool[[]string] { return p.tags }

// Tag adds keys to every tag's member set. The tag entries are written as one
// deferred batch. A tag entry that could not be decoded is rebuilt from keys
// alone and its decode error returned with the result.
func (p *Pool[V]) Tag(ctx context.Context, keys []string, tags ...string) (bool, error) {
	for _, k := range keys {
		if err := cachepool.ValidateKey(k); err != nil {
			return false, stamp(err, "Tag")
		}
	}
	tagKeys, err := deriveAll(tags)
	if err != nil || len(tagKeys) == 0 {
		return err == nil, stamp(err, "Tag")
	}

	items, getErr := p.tags.GetItems(ctx, tagKeys)
	if items == nil && getErr != nil {
		return false, getErr
	}

	ok := true
	var errs []error
	for _, it := range items {
		members, _ := it.Get()
		it.Set(util.Dedupe(append(members, keys...))).NeverExpires()
		saved, err := p.tags.SaveDeferred(ctx, it)
		if err != nil {
			errs = append(errs, err)
		}
		ok = ok && saved
	}
	ok = p.tags.Commit(ctx) && ok && len(errs) == 0
	return ok, errors.Join(append(errs, getErr)...)
}

// InvalidateTags deletes every member of the given tags from the wrapped pool,
// then the tag entries themselves. Unknown tags are a successful no-op. When
// deleting members fails the tag entries are kept so the call can be retried.
func (p *Pool[V]) InvalidateTags(ctx context.Context, tags ...string) (bool, error) {
	tagKeys, err := deriveAll(tags)
	if err != nil || len(tagKeys) == 0 {
		return err == nil, stamp(err, "InvalidateTags")
	}

	items, err := p.tags.GetItems(ctx, tagKeys)
	if items == nil && err != nil {
		return false, err
	}
	var members []string
	for _, it := range items {
		if m, ok := it.Get(); ok {
			members = append(members, m...)
		}
	}
	members = util.Dedupe(members)

	if len(members) > 0 {
		ok, derr := p.ItemPool.DeleteItems(ctx, members)
		if derr != nil || !ok {
			p.log.Warn("tag invalidation: member delete failed", cachepool.Fields{"tags": tags, "members": len(members), "err": derr})
			return false, errors.Join(derr, err)
		}
	}
	ok, derr := p.tags.DeleteItems(ctx, tagKeys)
	p.log.Debug("invalidated tags", cachepool.Fields{"tags": tags, "members": len(members), "ok": ok})
	return ok && derr == nil, errors.Join(derr, err)
}

// Close closes the wrapped pool and then the tag pool.
func (p *Pool[V]) Close(ctx context.Context) error {
	return errors.Join(p.ItemPool.Close(ctx), p.tags.Close(ctx))
}

// deriveAll maps tag names to tag-pool keys, first occurrence order.
// stamp names op on a validation error that does not carry one yet.
func stamp(err error, op string) error {
	var ve *cachepool.ValidationError
	if errors.As(err, &ve) && ve.Op == "" {
		cp := *ve
		cp.Op = op
		return &cp
	}
	return err
}

func deriveAll(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			return nil, &cachepool.ValidationError{Field: "tag", Value: t, Reason: "empty", Err: cachepool.ErrInvalidArgument}
		}
		k, err := cachepool.DeriveKey(t)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return util.Dedupe(out), nil
}
