package tag

import (
	"context"

	"github.com/unkn0wn-root/cachepool"
	"github.com/unkn0wn-root/cachepool/adapter"
)

// KV is the key-value view of a tag-aware pool.
type KV[V any] struct {
	*adapter.KV[V]
	tags *Pool[V]
}

var _ cachepool.KeyValue[struct{}] = (*KV[struct{}])(nil)

func NewKV[V any](cache cachepool.ItemPool[V], opts Options) (*KV[V], error) {
	p, err := New(cache, opts)
	if err != nil {
		return nil, err
	}
	return &KV[V]{KV: adapter.NewKV[V](p), tags: p}, nil
}

func (k *KV[V]) Tag(ctx context.Context, keys []string, tags ...string) (bool, error) {
	return k.tags.Tag(ctx, keys, tags...)
}

func (k *KV[V]) InvalidateTags(ctx context.Context, tags ...string) (bool, error) {
	return k.tags.InvalidateTags(ctx, tags...)
}

// TagPool returns the pool holding the tag index.
func (k *KV[V]) TagPool() cachepool.ItemPool[[]string] { return k.tags.TagPool() }
