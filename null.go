package cachepool

import "context"

// NullPool is an ItemPool that never stores anything. Every lookup misses
// and Save reports false; keys are still validated so callers see the same
// errors they would against a real pool.
type NullPool[V any] struct{}

var _ ItemPool[struct{}] = NullPool[struct{}]{}

func (NullPool[V]) GetItem(_ context.Context, key string) (*Item[V], error) {
	if err := ValidateKey(key); err != nil {
		return nil, withOp(err, "GetItem")
	}
	return newItem[V](key, nil), nil
}

func (NullPool[V]) GetItems(_ context.Context, keys []string) ([]*Item[V], error) {
	if err := validateKeys("GetItems", keys); err != nil {
		return nil, err
	}
	var out []*Item[V]
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, newItem[V](k, nil))
	}
	return out, nil
}

func (NullPool[V]) HasItem(_ context.Context, key string) (bool, error) {
	return false, withOp(ValidateKey(key), "HasItem")
}

func (NullPool[V]) Save(_ context.Context, item *Item[V]) (bool, error) {
	return false, checkItem("Save", item)
}

func (NullPool[V]) SaveDeferred(_ context.Context, item *Item[V]) (bool, error) {
	if err := checkItem("SaveDeferred", item); err != nil {
		return false, err
	}
	return true, nil
}

func (NullPool[V]) Commit(context.Context) bool { return false }

func (NullPool[V]) DeleteItem(_ context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, withOp(err, "DeleteItem")
	}
	return true, nil
}

func (NullPool[V]) DeleteItems(_ context.Context, keys []string) (bool, error) {
	if err := validateKeys("DeleteItems", keys); err != nil {
		return false, err
	}
	return true, nil
}

func (NullPool[V]) Clear(context.Context) bool  { return true }
func (NullPool[V]) Close(context.Context) error { return nil }

func checkItem[V any](op string, item *Item[V]) error {
	if item == nil {
		return &ValidationError{Op: op, Field: "item", Reason: "nil item", Err: ErrInvalidArgument}
	}
	return withOp(ValidateKey(item.key), op)
}
