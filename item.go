package cachepool

import (
	"time"

	"github.com/huandu/go-clone"
)

// Item is one key's lookup/write state: hit flag, value and expiration.
// Items are plain values handed to a single caller; they are not safe for
// concurrent mutation.
type Item[V any] struct {
	key       string
	value     V
	hit       bool
	expiresAt time.Time // zero => never
	now       func() time.Time
}

// NewItem returns a miss item for key.
func NewItem[V any](key string) (*Item[V], error) {
	return NewItemWithClock[V](key, nil)
}

// NewItemWithClock is NewItem with an explicit clock for relative TTLs and
// expiry checks. A nil clock means time.Now.
func NewItemWithClock[V any](key string, now func() time.Time) (*Item[V], error) {
	if err := ValidateKey(key); err != nil {
		return nil, withOp(err, "NewItem")
	}
	return newItem[V](key, now), nil
}

func newItem[V any](key string, now func() time.Time) *Item[V] {
	return &Item[V]{key: key, now: clockOr(now)}
}

func (i *Item[V]) Key() string { return i.key }

// IsHit reports whether the item holds a value: it was found live at lookup
// time or Set has been called since.
func (i *Item[V]) IsHit() bool { return i.hit }

// Get returns a copy of the value. ok is false on a miss, which keeps a
// cached zero value distinguishable from no value at all.
func (i *Item[V]) Get() (v V, ok bool) {
	if !i.hit {
		return v, false
	}
	return deepCopy(i.value), true
}

// Set stores a deep copy of v and marks the item as a hit. Later mutations of
// v by the caller do not reach the item.
func (i *Item[V]) Set(v V) *Item[V] {
	i.value = deepCopy(v)
	i.hit = true
	return i
}

// ExpiresAt sets an absolute expiration. The zero time means never.
func (i *Item[V]) ExpiresAt(t time.Time) *Item[V] {
	i.expiresAt = t
	return i
}

// ExpiresAfter sets the expiration relative to the item's clock. A zero or
// negative duration expires the item immediately.
func (i *Item[V]) ExpiresAfter(d time.Duration) *Item[V] {
	i.expiresAt = i.clock()().Add(d)
	return i
}

func (i *Item[V]) NeverExpires() *Item[V] {
	i.expiresAt = time.Time{}
	return i
}

// Expire applies an untyped TTL; see ExpirationFor for the accepted shapes.
// On error the expiration is left unchanged.
func (i *Item[V]) Expire(ttl any) error {
	t, err := ExpirationFor(ttl, i.clock()())
	if err != nil {
		return withOp(err, "Expire")
	}
	i.expiresAt = t
	return nil
}

// Expiration returns the absolute expiration; ok is false when the item
// never expires.
func (i *Item[V]) Expiration() (t time.Time, ok bool) {
	return i.expiresAt, !i.expiresAt.IsZero()
}

// Expired reports whether an expiration is set and lies at or before now.
func (i *Item[V]) Expired() bool {
	return expiredAt(i.expiresAt, i.clock()())
}

func (i *Item[V]) clock() func() time.Time { return clockOr(i.now) }

// Clone returns an independent copy of the item, value included.
func (i *Item[V]) Clone() *Item[V] {
	cp := *i
	if cp.hit {
		cp.value = deepCopy(i.value)
	}
	return &cp
}

func expiredAt(exp, now time.Time) bool {
	return !exp.IsZero() && !now.Before(exp)
}

func deepCopy[V any](v V) V {
	c, ok := clone.Clone(v).(V)
	if !ok {
		var zero V
		return zero
	}
	return c
}
