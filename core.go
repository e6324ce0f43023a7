package cachepool

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/unkn0wn-root/cachepool/codec"
	"github.com/unkn0wn-root/cachepool/internal/wire"
	"github.com/unkn0wn-root/cachepool/store"
)

var errNilStore = errors.New("cachepool: store is required")

// core is the envelope-speaking layer shared by Pool and Simple. Both read
// and write the same wire format, so they interoperate over one store.
type core[V any] struct {
	store     store.Store
	codec     codec.Codec[V]
	log       Logger
	hooks     Hooks
	now       func() time.Time
	ownsStore bool
}

func newCore[V any](opts Options[V]) (core[V], error) {
	if opts.Store == nil {
		return core[V]{}, errNilStore
	}
	c := core[V]{
		store:     opts.Store,
		codec:     opts.Codec,
		ownsStore: opts.OwnsStore,
		now:       clockOr(opts.Now),
	}
	if c.codec == nil {
		c.codec = codec.Default[V]()
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return c, nil
}

// load reads key from the store. A nil item with nil error is a miss.
func (c *core[V]) load(ctx context.Context, op, key string) (*Item[V], error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, &BackendError{Op: op, Key: key, Err: err}
	}
	if !ok {
		return nil, nil
	}
	return c.decode(ctx, key, raw)
}

func (c *core[V]) decode(ctx context.Context, key string, raw []byte) (*Item[V], error) {
	exp, payload, err := wire.Decode(raw)
	if err != nil {
		c.heal(ctx, key, err)
		return nil, &codec.DecodingError{Len: len(raw), Err: err}
	}
	if c.expired(ctx, key, exp) {
		return nil, nil
	}
	v, err := codec.Decode(c.codec, payload)
	if err != nil {
		c.heal(ctx, key, err)
		return nil, err
	}
	it := newItem[V](key, c.now)
	it.value, it.hit = v, true
	if exp != 0 {
		it.expiresAt = time.Unix(0, exp)
	}
	return it, nil
}

// probe answers presence from the envelope header alone.
func (c *core[V]) probe(ctx context.Context, op, key string) (bool, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return false, &BackendError{Op: op, Key: key, Err: err}
	}
	if !ok {
		return false, nil
	}
	exp, err := wire.Header(raw)
	if err != nil {
		c.heal(ctx, key, err)
		return false, &codec.DecodingError{Len: len(raw), Err: err}
	}
	return !c.expired(ctx, key, exp), nil
}

// expired drops an entry whose envelope expiration has passed.
func (c *core[V]) expired(ctx context.Context, key string, exp int64) bool {
	if exp == 0 || c.now().UnixNano() < exp {
		return false
	}
	_ = c.store.Delete(ctx, key)
	c.hooks.ExpiredOnRead(key)
	return true
}

// heal deletes an entry that could not be decoded.
func (c *core[V]) heal(ctx context.Context, key string, cause error) {
	_ = c.store.Delete(ctx, key)
	c.log.Warn("dropped undecodable entry", Fields{"key": key, "err": cause})
	c.hooks.DecodeFailed(key, cause)
}

// record is an encoded entry ready to be written.
type record struct {
	key       string
	payload   []byte
	expiresAt time.Time
}

func (c *core[V]) encode(key string, v V, exp time.Time) (record, error) {
	b, err := codec.Encode(c.codec, v)
	if err != nil {
		return record{}, err
	}
	return record{key: key, payload: b, expiresAt: exp}, nil
}

// write persists records as one batch: live ones through SetMany, already
// expired ones are deleted instead. The returned map holds per-key failures.
func (c *core[V]) write(ctx context.Context, recs []record) map[string]error {
	if len(recs) == 0 {
		return nil
	}
	now := c.now()
	sets := make([]store.Entry, 0, len(recs))
	var dels []string
	for _, r := range recs {
		if expiredAt(r.expiresAt, now) {
			dels = append(dels, r.key)
			continue
		}
		var ttl time.Duration
		var exp int64
		if !r.expiresAt.IsZero() {
			ttl = r.expiresAt.Sub(now)
			exp = envelopeExpiry(r.expiresAt)
		}
		sets = append(sets, store.Entry{Key: r.key, Value: wire.Encode(exp, r.payload), TTL: ttl})
	}

	failed := make(map[string]error)
	for k, err := range store.SetMany(ctx, c.store, sets) {
		failed[k] = err
		c.storeFailed("set", k, err)
	}
	for k, err := range store.DeleteMany(ctx, c.store, dels) {
		failed[k] = err
		c.storeFailed("delete", k, err)
	}
	return failed
}

// envelopeExpiry caps instants past the int64 nanosecond range at the
// latest representable one.
func envelopeExpiry(t time.Time) int64 {
	if t.After(maxExpiration) {
		return math.MaxInt64
	}
	return t.UnixNano()
}

func (c *core[V]) remove(ctx context.Context, keys []string) bool {
	failed := store.DeleteMany(ctx, c.store, keys)
	for k, err := range failed {
		c.storeFailed("delete", k, err)
	}
	return len(failed) == 0
}

func (c *core[V]) clear(ctx context.Context) bool {
	if err := c.store.Clear(ctx); err != nil {
		c.storeFailed("clear", "", err)
		return false
	}
	return true
}

func (c *core[V]) storeFailed(op, key string, err error) {
	c.log.Warn("store "+op+" failed", Fields{"key": key, "err": err})
	c.hooks.StoreFailed(op, key, err)
}

func (c *core[V]) close(ctx context.Context) error {
	if c.ownsStore {
		return c.store.Close(ctx)
	}
	return nil
}
