// Package adapter bridges the two cache API shapes: KV exposes an ItemPool as
// a KeyValue, Pool exposes a KeyValue as an ItemPool.
package adapter

import (
	"iter"
	"time"

	"github.com/unkn0wn-root/cachepool"
)

// zeroTime is only used to check ttl shapes up front.
var zeroTime time.Time

// collect drains seq and validates every key before any storage access.
func collect(op string, seq iter.Seq[string]) ([]string, error) {
	if seq == nil {
		return nil, &cachepool.ValidationError{Op: op, Field: "keys", Reason: "nil iterator", Err: cachepool.ErrInvalidArgument}
	}
	var keys []string
	for k := range seq {
		if err := cachepool.ValidateKey(k); err != nil {
			return nil, stamp(err, op)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func validate(op string, keys ...string) error {
	for _, k := range keys {
		if err := cachepool.ValidateKey(k); err != nil {
			return stamp(err, op)
		}
	}
	return nil
}

func stamp(err error, op string) error {
	if ve, ok := err.(*cachepool.ValidationError); ok && ve.Op == "" {
		cp := *ve
		cp.Op = op
		return &cp
	}
	return err
}
